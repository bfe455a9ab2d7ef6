package reply

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/buger/jsonparser"
	"github.com/sirupsen/logrus"
)

// Step key prefixes the decoder extracts.
const (
	OutputTextPrefix   = "output:text"
	QuickRepliesPrefix = "quickReplies"
)

var errMalformed = errors.New("malformed backend reply")

// Decode extracts segments, quick replies and conversation state from a
// backend reply in one call.
func Decode(body []byte) domain.BackendReply {
	state, ok := DecodeConversationState(body)
	return domain.BackendReply{
		Segments:          DecodeOutputs(body),
		QuickReplies:      DecodeQuickReplies(body),
		ConversationState: state,
		HasState:          ok,
	}
}

// DecodeOutputs returns the text of every step whose key starts with
// "output:text", in reply order. Values with no textual form (null, arrays)
// are kept as "" so positions match the reply. It never fails: malformed
// input is logged and yields nil.
func DecodeOutputs(body []byte) []string {
	var out []string
	err := eachStep(body, func(key string, value []byte, vt jsonparser.ValueType) {
		if strings.HasPrefix(key, OutputTextPrefix) {
			out = append(out, outputText(value, vt))
		}
	})
	if err != nil {
		logDecodeError("outputs", err)
		return nil
	}
	return out
}

// DecodeQuickReplies returns one option per element of every array-valued
// step whose key starts with "quickReplies". Malformed input yields nil.
func DecodeQuickReplies(body []byte) []domain.QuickReplyOption {
	var out []domain.QuickReplyOption
	err := eachStep(body, func(key string, value []byte, vt jsonparser.ValueType) {
		if !strings.HasPrefix(key, QuickRepliesPrefix) || vt != jsonparser.Array {
			return
		}
		_, _ = jsonparser.ArrayEach(value, func(option []byte, ot jsonparser.ValueType, _ int, _ error) {
			out = append(out, domain.QuickReplyOption{
				Value:       fieldText(option, ot, "value"),
				Expressions: fieldText(option, ot, "expressions"),
			})
		})
	})
	if err != nil {
		logDecodeError("quick replies", err)
		return nil
	}
	return out
}

// DecodeConversationState returns the top-level "conversationState" text.
// ok is false when the field is absent, null or the input is malformed.
func DecodeConversationState(body []byte) (state string, ok bool) {
	if !json.Valid(body) {
		logDecodeError("conversation state", errMalformed)
		return "", false
	}
	value, vt, _, err := jsonparser.Get(body, "conversationState")
	if err != nil || vt == jsonparser.Null {
		return "", false
	}
	return text(value, vt), true
}

// eachStep calls fn for every conversationSteps[].conversationStep[] entry.
// A reply without conversationSteps has no entries and is not an error.
func eachStep(body []byte, fn func(key string, value []byte, vt jsonparser.ValueType)) error {
	if !json.Valid(body) {
		return errMalformed
	}
	_, err := jsonparser.ArrayEach(body, func(step []byte, st jsonparser.ValueType, _ int, _ error) {
		if st != jsonparser.Object {
			return
		}
		_, _ = jsonparser.ArrayEach(step, func(entry []byte, et jsonparser.ValueType, _ int, _ error) {
			if et != jsonparser.Object {
				return
			}
			rawKey, kt, _, err := jsonparser.Get(entry, "key")
			if err != nil || kt == jsonparser.Null {
				return
			}
			value, vt, _, err := jsonparser.Get(entry, "value")
			if err != nil {
				value, vt = nil, jsonparser.NotExist
			}
			fn(text(rawKey, kt), value, vt)
		}, "conversationStep")
	}, "conversationSteps")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil
	}
	return err
}

// outputText also accepts the object form {"type":"text","text":"..."}.
func outputText(value []byte, vt jsonparser.ValueType) string {
	if vt == jsonparser.Object {
		return fieldText(value, vt, "text")
	}
	return text(value, vt)
}

func fieldText(obj []byte, vt jsonparser.ValueType, field string) string {
	if vt != jsonparser.Object {
		return ""
	}
	value, ft, _, err := jsonparser.Get(obj, field)
	if err != nil {
		return ""
	}
	return text(value, ft)
}

// text coerces a scalar to its textual form; containers and null give "".
func text(value []byte, vt jsonparser.ValueType) string {
	switch vt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return string(value)
		}
		return s
	case jsonparser.Number, jsonparser.Boolean:
		return string(value)
	default:
		return ""
	}
}

func logDecodeError(what string, err error) {
	logrus.WithError(err).Warnf("[DECODER] Could not decode %s from backend reply", what)
}
