// Package mysql persists submission history. A JSON Lines file repository
// serves single-node deployments and a MySQL repository with embedded
// migrations serves shared ones.
package mysql
