package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskState
		want     bool
	}{
		{TaskCreated, TaskRunning, true},
		{TaskRunning, TaskStopping, true},
		{TaskStopping, TaskStopped, true},
		{TaskStopped, TaskRunning, true},
		{TaskStopping, TaskRunning, false},
		{TaskCreated, TaskStopped, false},
		{TaskRunning, TaskStopped, false},
		{TaskStopped, TaskStopping, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRemovable(t *testing.T) {
	assert.True(t, TaskCreated.Removable())
	assert.True(t, TaskStopped.Removable())
	assert.False(t, TaskRunning.Removable())
	assert.False(t, TaskStopping.Removable())
}

func TestChainIsEVM(t *testing.T) {
	assert.False(t, ChainSolana.IsEVM())
	assert.True(t, ChainBase.IsEVM())
	assert.True(t, ChainBsc.IsEVM())
}

func validSpec() TaskSpec {
	return TaskSpec{
		WalletGroupID: "g1",
		WorkersCnt:    2,
		TradeConfig: TradeConfig{
			Token:        TokenInfo{Address: "Mint"},
			Mode:         TradeBoth,
			Percentage:   [2]uint32{10, 30},
			IntervalSecs: 6,
		},
	}
}

func TestTaskSpecValidate(t *testing.T) {
	require.NoError(t, validSpec().Validate())

	tests := []struct {
		name   string
		mutate func(*TaskSpec)
	}{
		{"missing group", func(s *TaskSpec) { s.WalletGroupID = "" }},
		{"zero workers", func(s *TaskSpec) { s.WorkersCnt = 0 }},
		{"unknown mode", func(s *TaskSpec) { s.Mode = "Sideways" }},
		{"inverted range", func(s *TaskSpec) { s.Percentage = [2]uint32{40, 10} }},
		{"over 100", func(s *TaskSpec) { s.Percentage = [2]uint32{10, 101} }},
		{"missing token", func(s *TaskSpec) { s.Token.Address = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidTaskSpec)
		})
	}
}

func TestTradeConfigInterval(t *testing.T) {
	assert.Equal(t, 6*time.Second, validSpec().Interval())
}

func TestEvents(t *testing.T) {
	te := NewTaskEvent("t1", EventStopped, "task t1 stop succeeded")
	assert.Nil(t, te.WorkerID)
	assert.Equal(t, "task_t1", te.Channel())
	assert.NotZero(t, te.Ts)

	we := NewWorkerEvent("t1", 4, EventExecuted, "")
	require.NotNil(t, we.WorkerID)
	assert.Equal(t, uint32(4), *we.WorkerID)
	assert.Equal(t, TaskChannel("t1"), we.Channel())
}
