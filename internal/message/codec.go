package message

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Wire keys for the binary map encoding. The "sender" key is an older
// spelling of "user-id" that some platform versions still emit.
const (
	keyID            = "id"
	keyGroupID       = "group-id"
	keyThreadID      = "thread-id"
	keyUserID        = "user-id"
	keySender        = "sender"
	keyContent       = "content"
	keyMentionedTags = "mentioned-tag-ids"
)

// encMode uses Core Deterministic Encoding so the same message always
// produces identical bytes; the platform does not care, but it keeps
// signatures over outbound bodies reproducible in tests.
var encMode cbor.EncMode

// decMode accepts standard CBOR and forces string-keyed maps for
// any-typed targets, since every platform message is a string-keyed map.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("message: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("message: CBOR decoder initialization failed: " + err.Error())
	}
}

// DecodeError reports a malformed inbound message. It is a
// per-request failure: the caller logs it and drops the request.
type DecodeError struct {
	Key    string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("decode message: %s", e.Reason)
	}
	return fmt.Sprintf("decode message: key %q: %s", e.Key, e.Reason)
}

// Decode parses an inbound binary-map message. The group-id,
// thread-id, user-id (or sender) and content keys are required;
// absence or a non-string value is a DecodeError.
func Decode(b []byte) (Message, error) {
	var raw map[string]any
	if err := decMode.Unmarshal(b, &raw); err != nil {
		return Message{}, &DecodeError{Reason: err.Error()}
	}

	groupID, err := requireString(raw, keyGroupID)
	if err != nil {
		return Message{}, err
	}
	threadID, err := requireString(raw, keyThreadID)
	if err != nil {
		return Message{}, err
	}
	userID, err := requireString(raw, keyUserID)
	if err != nil {
		// Fall back to the older "sender" spelling before giving up.
		var senderErr error
		if userID, senderErr = requireString(raw, keySender); senderErr != nil {
			return Message{}, err
		}
	}
	content, err := requireString(raw, keyContent)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		GroupID:  groupID,
		ThreadID: threadID,
		UserID:   userID,
		Content:  content,
	}

	if id, ok := raw[keyID].(string); ok {
		msg.ID = id
	}
	if tags, ok := raw[keyMentionedTags].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				msg.MentionedTags = append(msg.MentionedTags, s)
			}
		}
	}

	return msg, nil
}

// Encode serializes an outbound message to the binary map encoding.
// A message id is generated when the caller did not set one.
func Encode(m Message) ([]byte, error) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	raw := map[string]any{
		keyID:       id,
		keyGroupID:  m.GroupID,
		keyThreadID: m.ThreadID,
		keyContent:  m.Content,
	}
	if m.UserID != "" {
		raw[keyUserID] = m.UserID
	}
	tags := make([]string, 0, len(m.MentionedTags))
	tags = append(tags, m.MentionedTags...)
	raw[keyMentionedTags] = tags

	b, err := encMode.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

func requireString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &DecodeError{Key: key, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &DecodeError{Key: key, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}
