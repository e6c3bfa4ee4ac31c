package telegram

import (
	"encoding/json"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
)

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, classify(nil))
}

func TestClassify_ProtocolError(t *testing.T) {
	tgErr := &tgbotapi.Error{
		Code:    429,
		Message: "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{
			RetryAfter: 5,
		},
	}

	err := classify(tgErr)

	assert.Equal(t, KindProtocol, err.Kind)
	assert.Equal(t, 429, err.Code)
	assert.Equal(t, 5, err.RetryAfter)
	assert.True(t, err.Retryable())
	assert.Same(t, tgErr, errors.Unwrap(err))
}

func TestClassify_ProtocolErrorWithMigration(t *testing.T) {
	tgErr := &tgbotapi.Error{
		Code:    400,
		Message: "group chat was upgraded to a supergroup chat",
		ResponseParameters: tgbotapi.ResponseParameters{
			MigrateToChatID: -1001234567890,
		},
	}

	err := classify(tgErr)

	assert.Equal(t, KindProtocol, err.Kind)
	assert.EqualValues(t, -1001234567890, err.MigrateToChatID)
}

func TestClassify_DecodeError(t *testing.T) {
	badJSON := []byte(`{"ok":`)
	unmarshalErr := json.Unmarshal(badJSON, &struct{}{})
	assert.Error(t, unmarshalErr)

	err := classify(unmarshalErr)
	assert.Equal(t, KindDecode, err.Kind)
	assert.Equal(t, decodeErrorCode, err.Code)
	assert.True(t, err.Retryable())
}

func TestClassify_TransportError(t *testing.T) {
	raw := errors.New("connection reset by peer")
	err := classify(raw)

	assert.Equal(t, KindTransport, err.Kind)
	assert.True(t, err.Retryable())
	assert.Equal(t, raw, errors.Unwrap(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "protocol", KindProtocol.String())
	assert.Equal(t, "decode", KindDecode.String())
}

func TestError_ErrorMessageIncludesKindAndDescription(t *testing.T) {
	err := &Error{Kind: KindProtocol, Description: "bad request", Code: 400}
	assert.Contains(t, err.Error(), "protocol")
	assert.Contains(t, err.Error(), "bad request")
}
