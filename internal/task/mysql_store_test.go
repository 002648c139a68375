package task

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRow []any

func (r staticRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = r[i].(string)
		case *Status:
			*target = Status(r[i].(string))
		case *int:
			*target = r[i].(int)
		case *int64:
			*target = r[i].(int64)
		default:
			if err := assignNullString(target, r[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func TestBuildFilterClause(t *testing.T) {
	clause, args := buildFilterClause(BuildListOptions([]ListOption{
		WithStatuses(StatusPending, StatusFailed),
		WithTool("send_arbitrum_eth"),
		WithErrorCodes("SUBMISSION_UNKNOWN"),
		WithResultPresence(true),
		WithQuery("0xabc"),
	}))
	assert.Equal(t, `status IN (?,?) AND tool = ? AND error_code IN (?) AND result LIKE '%"tx_id"%' AND (id LIKE ? OR tool LIKE ? OR input LIKE ? OR last_error LIKE ? OR result LIKE ?)`, clause)
	require.Len(t, args, 9)
	assert.Equal(t, StatusPending, args[0])
	assert.Equal(t, "send_arbitrum_eth", args[2])
	assert.Equal(t, "SUBMISSION_UNKNOWN", args[3])
	assert.Equal(t, "%0xabc%", args[4])

	clause, args = buildFilterClause(ListOptions{})
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestScanTaskDecodesJSONColumns(t *testing.T) {
	row := staticRow{
		"t1", "send_arbitrum_eth",
		nullString(`{"to_address":"0x1"}`),
		nullString(`{"source":"api"}`),
		"succeeded", 1, 3,
		nullString(""),
		"",
		nullString(`{"chain":"arbitrum-sepolia","state":"submitted","stage":"report","tx_id":"0xabc","status":"Done","return_direct":true}`),
		int64(10), int64(20),
	}
	task, err := scanTask(row)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, task.Status)
	assert.JSONEq(t, `{"to_address":"0x1"}`, string(task.Input))
	assert.Equal(t, "api", task.Metadata["source"])
	require.NotNil(t, task.Result)
	assert.Equal(t, "0xabc", task.Result.TxID)
	assert.True(t, task.Result.ReturnDirect)
}

type nullValue struct {
	value string
	valid bool
}

func nullString(v string) nullValue {
	return nullValue{value: v, valid: v != ""}
}

func assignNullString(dest any, src any) error {
	target, ok := dest.(*sql.NullString)
	if !ok {
		return fmt.Errorf("unsupported scan target %T", dest)
	}
	v := src.(nullValue)
	*target = sql.NullString{String: v.value, Valid: v.valid}
	return nil
}
