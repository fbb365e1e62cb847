package propagation

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backplane 跨实例转发事件
type Backplane interface {
	Publish(ctx context.Context, evt ChangeEvent) error
	// Listen 阻塞接收事件直到 ctx 结束
	Listen(ctx context.Context, handler func(ChangeEvent)) error
	Close() error
}

func encodeEvent(evt ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event %s: %w", evt.ID, err)
	}
	return data, nil
}

func decodeEvent(data []byte) (ChangeEvent, error) {
	var evt ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to decode change event: %w", err)
	}
	return evt, nil
}
