package decoder

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/amoylab/notification-service/internal/common/cnst"
)

// SessionEventName is the message type published by the session services.
const SessionEventName = "psds.notification.SessionEvent"

// SessionEventDescriptor returns the built-in descriptor of
//
//	message SessionEvent {
//	  string session_id = 1;
//	  string user_id = 2;
//	  string event = 3;
//	  string payload = 4;
//	  string operator_id = 5;
//	  int64 occurred_at = 6;
//	}
func SessionEventDescriptor() protoreflect.MessageDescriptor {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("psds/notification/session_event.proto"),
		Package: proto.String("psds.notification"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("SessionEvent"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("session_id", 1, str),
				scalarField("user_id", 2, str),
				scalarField("event", 3, str),
				scalarField("payload", 4, str),
				scalarField("operator_id", 5, str),
				scalarField("occurred_at", 6, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			},
		}},
	}
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		panic(fmt.Sprintf("build session event descriptor: %v", err))
	}
	return fd.Messages().ByName("SessionEvent")
}

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// LoadSchema reads a serialized FileDescriptorSet (protoc --descriptor_set_out)
// and returns the named message.
func LoadSchema(path, messageName string) (protoreflect.MessageDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor set: %w", err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse descriptor set: %w", err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("link descriptor set: %w", err)
	}
	desc, err := files.FindDescriptorByName(protoreflect.FullName(messageName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", cnst.ErrSchemaNotFound, messageName)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a message", cnst.ErrSchemaNotFound, messageName)
	}
	return md, nil
}
