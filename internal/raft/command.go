package raft

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ASHISH26940/homestate/internal/model"
	"github.com/ASHISH26940/homestate/internal/transaction"
)

// ErrUnknownOp is returned for commands the FSM does not understand.
var ErrUnknownOp = errors.New("unknown command op")

// Command ops.
const (
	OpAdd        = "ADD"
	OpRemove     = "REMOVE"
	OpUpdate     = "UPDATE"
	OpNotify     = "NOTIFY"
	OpReplaceAll = "REPLACE_ALL"
	OpTxCommit   = "TX_COMMIT"
)

// Command is a single store mutation committed to the raft log.
type Command struct {
	Op       string                `json:"op"`
	Owner    string                `json:"owner,omitempty"`
	Items    []model.Item          `json:"items,omitempty"`
	IDs      []int                 `json:"ids,omitempty"`
	WriteSet []transaction.WriteOp `json:"write_set,omitempty"` // For transactions
}

// Encode marshals the command for raft.Apply.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCommand parses and validates a command.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("unmarshal command: %w", err)
	}
	return cmd, cmd.validate()
}

func (c Command) validate() error {
	switch c.Op {
	case OpAdd, OpRemove, OpUpdate, OpNotify, OpReplaceAll:
		return nil
	case OpTxCommit:
		for i, op := range c.WriteSet {
			switch op.Op {
			case transaction.OpAdd, transaction.OpRemove, transaction.OpUpdate:
			default:
				return fmt.Errorf("write set entry %d: %w: %q", i, ErrUnknownOp, op.Op)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}
}
