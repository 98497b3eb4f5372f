// README: Omise-backed Gateway; auth-only charges captured/reversed/refunded by charge id.
package payments

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

type OmiseGateway struct {
	client *omise.Client
}

func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &OmiseGateway{client: client}, nil
}

func (g *OmiseGateway) Authorize(_ context.Context, amount types.Money, instrument string) (string, error) {
	charge := &omise.Charge{}
	err := g.client.Do(charge, &operations.CreateCharge{
		Amount:      amount.Amount,
		Currency:    amount.Currency,
		Card:        instrument,
		DontCapture: true,
	})
	if err != nil {
		return "", fmt.Errorf("omise create charge: %w", err)
	}
	if string(charge.Status) == "failed" {
		return "", fmt.Errorf("omise charge failed (%s): %w", failureCode(charge), errorx.ErrPaymentDeclined)
	}
	return charge.ID, nil
}

func failureCode(ch *omise.Charge) string {
	if ch.FailureCode != nil {
		return *ch.FailureCode
	}
	return "unknown"
}

func (g *OmiseGateway) Capture(_ context.Context, ref string, _ types.Money) error {
	charge := &omise.Charge{}
	err := g.client.Do(charge, &operations.CaptureCharge{ChargeID: ref})
	if err != nil {
		return fmt.Errorf("omise capture %s: %w", ref, err)
	}
	if string(charge.Status) == "failed" {
		return fmt.Errorf("omise capture %s failed (%s): %w", ref, failureCode(charge), errorx.ErrPaymentDeclined)
	}
	return nil
}

func (g *OmiseGateway) Void(_ context.Context, ref string) error {
	charge := &omise.Charge{}
	if err := g.client.Do(charge, &operations.ReverseCharge{ChargeID: ref}); err != nil {
		return fmt.Errorf("omise reverse %s: %w", ref, err)
	}
	return nil
}

func (g *OmiseGateway) Refund(_ context.Context, ref string, amount types.Money) error {
	refund := &omise.Refund{}
	err := g.client.Do(refund, &operations.CreateRefund{
		ChargeID: ref,
		Amount:   amount.Amount,
	})
	if err != nil {
		return fmt.Errorf("omise refund %s: %w", ref, err)
	}
	return nil
}
