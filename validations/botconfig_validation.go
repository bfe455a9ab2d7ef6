package validations

import (
	"context"
	"regexp"

	"github.com/AzielCF/az-messenger/botconfig/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MessengerCredentialKeys are the connector config keys a Messenger channel must carry.
var MessengerCredentialKeys = []string{"appSecret", "verificationToken", "pageAccessToken"}

var botIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateDeploy checks a configuration deployment. Connectors of
// messengerConnectorType must carry every key in MessengerCredentialKeys.
func ValidateDeploy(ctx context.Context, request domain.DeployRequest, messengerConnectorType string) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.BotID, validation.Required, validation.Length(1, 64), validation.Match(botIDPattern)),
		validation.Field(&request.Channels, validation.Required, validation.Each(validation.By(func(value any) error {
			return validateConnector(value, messengerConnectorType)
		}))),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func validateConnector(value any, messengerConnectorType string) error {
	ch, ok := value.(domain.ChannelConnector)
	if !ok {
		return validation.NewError("validation_connector", "must be a channel connector")
	}
	if err := validation.Validate(ch.Type, validation.Required); err != nil {
		return validation.Errors{"type": err}
	}
	if ch.Type != messengerConnectorType {
		return nil
	}

	missing := validation.Errors{}
	for _, key := range MessengerCredentialKeys {
		if err := validation.Validate(ch.Config[key], validation.Required); err != nil {
			missing[key] = err
		}
	}
	if len(missing) > 0 {
		return validation.Errors{"config": missing}
	}
	return nil
}
