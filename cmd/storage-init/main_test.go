package main

import (
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/stretchr/testify/require"
)

func TestAlreadyExists(t *testing.T) {
	code := string(aztables.TableAlreadyExists)
	require.True(t, alreadyExists(&azcore.ResponseError{ErrorCode: code}, code))
	require.False(t, alreadyExists(&azcore.ResponseError{ErrorCode: "AuthorizationFailure"}, code))
	require.False(t, alreadyExists(errors.New("boom"), code))
}

func TestTableNamesDefaults(t *testing.T) {
	t.Setenv("TASKS_TABLE", "")
	t.Setenv("SUBTASKS_TABLE", "")
	require.Equal(t, []string{"Tasks", "Subtasks"}, tableNames())

	t.Setenv("TASKS_TABLE", "DevTasks")
	t.Setenv("SUBTASKS_TABLE", "DevSubtasks")
	require.Equal(t, []string{"DevTasks", "DevSubtasks"}, tableNames())
}
