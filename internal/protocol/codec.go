package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeTask serializes a task envelope after validating it. Tasks cross the
// worker boundary as bytes so no live references leak into a unit.
func EncodeTask(t *TaskMessage) ([]byte, error) {
	if err := validateTask(t); err != nil {
		return nil, err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return data, nil
}

// DecodeTask deserializes and validates a task envelope.
func DecodeTask(data []byte) (*TaskMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty task message")
	}
	var t TaskMessage
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("task message is not valid JSON: %w", err)
	}
	if err := validateTask(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeResult serializes a result envelope after validating it.
func EncodeResult(r *ResultMessage) ([]byte, error) {
	if err := validateResult(r); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

// DecodeResult deserializes and validates a result envelope.
func DecodeResult(data []byte) (*ResultMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty result message")
	}
	var r ResultMessage
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("result message is not valid JSON: %w", err)
	}
	if err := validateResult(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func validateTask(t *TaskMessage) error {
	switch t.Type {
	case TaskProcess:
		if t.ID == "" {
			return fmt.Errorf("process task missing required field: id")
		}
		if t.Request == nil {
			return fmt.Errorf("process task missing required field: request")
		}
		if t.Request.Operation == "" || t.Request.Action == "" {
			return fmt.Errorf("process task request must name operation and action")
		}
	case TaskShutdown:
		// Shutdown carries no payload.
	default:
		return fmt.Errorf("invalid task type: %q (must be %q or %q)", t.Type, TaskProcess, TaskShutdown)
	}
	return nil
}

func validateResult(r *ResultMessage) error {
	switch r.Type {
	case ResultOK:
		if r.ID == "" {
			return fmt.Errorf("result missing required field: id")
		}
		if r.Error != "" {
			return fmt.Errorf("result has type=result but carries an error")
		}
	case ResultError:
		if r.ID == "" {
			return fmt.Errorf("result missing required field: id")
		}
		if r.Error == "" {
			return fmt.Errorf("result has type=error but no error message")
		}
		if len(r.Result) != 0 {
			return fmt.Errorf("result has type=error but carries a result value")
		}
	case WorkerReady:
		if r.ID != "" {
			return fmt.Errorf("ready signal must not carry an id")
		}
	default:
		return fmt.Errorf("invalid result type: %q", r.Type)
	}
	return nil
}
