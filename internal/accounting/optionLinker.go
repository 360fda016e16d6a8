package accounting

import (
	"fmt"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Delivery describes the stock trade an assignment or exercise settles into.
type Delivery struct {
	Type           model.TransactionType
	Shares         decimal.Decimal
	EffectivePrice decimal.Decimal
}

// DeliveryType is the stock side of an assignment or exercise:
// an assigned put or an exercised call buys the underlying, the
// other two sell it.
func DeliveryType(action model.OptionAction, optionType model.OptionType) (model.TransactionType, error) {
	switch action {
	case model.Assignment:
		if optionType == model.Put {
			return model.Buy, nil
		}
		return model.Sell, nil
	case model.Exercise:
		if optionType == model.Call {
			return model.Buy, nil
		}
		return model.Sell, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotDeliveryAction, action)
}

// RequiresSourceLot reports whether closing with action delivers shares out of an existing lot.
func RequiresSourceLot(action model.OptionAction, optionType model.OptionType) bool {
	t, err := DeliveryType(action, optionType)
	return err == nil && t == model.Sell
}

// Link computes the stock transaction produced by assigning or exercising
// contracts of an option. On assignment of a short position the premium
// received at open folds into the effective price. On exercise of a long
// position the premium was already paid and the price is exactly the strike.
func Link(action model.OptionAction, optionType model.OptionType, state OptionState, strike decimal.Decimal, contracts int64, sourceLotID string) (Delivery, error) {
	txType, err := DeliveryType(action, optionType)
	if err != nil {
		return Delivery{}, err
	}

	if txType == model.Sell && sourceLotID == "" {
		return Delivery{}, fmt.Errorf("%w: %s of a %s sells %d shares", ErrMissingSourceLot, action, optionType, contracts*ContractMultiplier)
	}

	price := strike
	if action == model.Assignment && state.Position == model.Short {
		if txType == model.Buy {
			price = strike.Sub(state.AvgPremium)
		} else {
			price = strike.Add(state.AvgPremium)
		}
	}

	return Delivery{
		Type:           txType,
		Shares:         decimal.NewFromInt(contracts).Mul(multiplier),
		EffectivePrice: price,
	}, nil
}
