package server

import (
	"time"

	"github.com/obby/tripwire/internal/hub"
	"google.golang.org/protobuf/types/known/structpb"
)

// messageFields flattens a message into JSON-compatible fields
func messageFields(msg hub.Message) map[string]any {
	data := make(map[string]any, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	return map[string]any{
		"id":    msg.ID,
		"event": msg.Event,
		"topic": msg.Topic,
		"time":  msg.Time.Format(time.RFC3339Nano),
		"data":  data,
	}
}

// MessageToStruct encodes a feed message for the wire
func MessageToStruct(msg hub.Message) (*structpb.Struct, error) {
	return structpb.NewStruct(messageFields(msg))
}

// StructToMessage decodes a wire message
func StructToMessage(s *structpb.Struct) hub.Message {
	fields := s.GetFields()
	msg := hub.Message{
		ID:    fields["id"].GetStringValue(),
		Event: fields["event"].GetStringValue(),
		Topic: fields["topic"].GetStringValue(),
		Data:  make(map[string]string),
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["time"].GetStringValue()); err == nil {
		msg.Time = ts
	}
	for k, v := range fields["data"].GetStructValue().GetFields() {
		msg.Data[k] = v.GetStringValue()
	}
	return msg
}
