// Package decoder turns inbound queue records into loosely typed events.
// Records are tried against the protobuf schema first and then as JSON text.
package decoder

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/pkg/utils"
)

type Format int

const (
	FormatUndecodable Format = iota
	FormatSchema
	FormatText
)

func (f Format) String() string {
	switch f {
	case FormatSchema:
		return "schema"
	case FormatText:
		return "text"
	default:
		return "undecodable"
	}
}

// Result is the outcome of decoding one record. Event is nil when Format is
// FormatUndecodable.
type Result struct {
	Event  Event
	Format Format
}

func (r Result) OK() bool { return r.Format != FormatUndecodable }

type Decoder struct {
	logger *zap.Logger
	schema protoreflect.MessageDescriptor
}

// New builds a decoder from configuration. A descriptor set that cannot be
// loaded is logged and the decoder continues with text decoding only.
func New(logger *zap.Logger, cfg config.DecoderConfig) *Decoder {
	d := &Decoder{logger: logger.Named("decoder")}
	switch {
	case cfg.Disabled:
		d.logger.Info("schema decoding disabled, using JSON only")
	case cfg.DescriptorSet != "":
		md, err := LoadSchema(cfg.DescriptorSet, cfg.MessageName)
		if err != nil {
			d.logger.Warn("failed to load schema, using JSON only",
				zap.String("descriptor_set", cfg.DescriptorSet),
				zap.Error(err))
			break
		}
		d.schema = md
	default:
		d.schema = SessionEventDescriptor()
	}
	return d
}

// NewWithSchema returns a decoder using md, or text only when md is nil.
func NewWithSchema(logger *zap.Logger, md protoreflect.MessageDescriptor) *Decoder {
	return &Decoder{logger: logger.Named("decoder"), schema: md}
}

func (d *Decoder) HasSchema() bool { return d.schema != nil }

// Decode never fails loudly: an unusable record yields FormatUndecodable.
func (d *Decoder) Decode(value []byte) Result {
	if len(value) == 0 {
		return Result{}
	}
	if d.schema != nil {
		if ev, ok := d.decodeSchema(value); ok {
			return Result{Event: ev, Format: FormatSchema}
		}
	}
	if ev, ok := decodeText(value); ok {
		return Result{Event: ev, Format: FormatText}
	}
	d.logger.Debug("dropping undecodable record", zap.Int("size", len(value)))
	return Result{}
}

func (d *Decoder) decodeSchema(value []byte) (Event, bool) {
	msg := dynamicpb.NewMessage(d.schema)
	if err := proto.Unmarshal(value, msg); err != nil {
		return nil, false
	}
	populated := 0
	msg.Range(func(protoreflect.FieldDescriptor, protoreflect.Value) bool {
		populated++
		return true
	})
	if populated == 0 {
		return nil, false
	}
	data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return nil, false
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false
	}
	return ev, true
}

func decodeText(value []byte) (Event, bool) {
	if !gjson.ValidBytes(value) || !gjson.ParseBytes(value).IsObject() {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, false
	}
	return ev, true
}

// Event is a decoded record. Identifier fields are accepted in both
// snake_case and camelCase spellings.
type Event map[string]any

func (e Event) str(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := e[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

func (e Event) SessionID() string {
	s, _ := e.str("session_id", "sessionId")
	return s
}

func (e Event) UserID() string {
	s, _ := e.str("user_id", "userId")
	return s
}

// EventName returns the event field when it is a non-empty string.
func (e Event) EventName() string {
	s, _ := e.str("event")
	return s
}

// EventType returns the event name, or fallback when absent, capped at
// cnst.MaxEventTypeLength characters.
func (e Event) EventType(fallback string) string {
	return utils.Truncate(utils.FirstNonEmpty(e.EventName(), fallback), cnst.MaxEventTypeLength)
}

// PayloadString returns the payload field when it is a string.
func (e Event) PayloadString() (string, bool) {
	return e.str("payload")
}
