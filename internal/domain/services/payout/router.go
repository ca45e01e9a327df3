package payout

import (
	"strings"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// sanctionedCountries blocks any payout regardless of method. Checked
// before every other routing rule.
var sanctionedCountries = map[string]bool{
	"KP": true, // North Korea
	"IR": true, // Iran
	"SY": true, // Syria
	"CU": true, // Cuba
	"SD": true, // Sudan
}

// mobileMoneyCountries is the set of destinations served by the
// mobile-money rail.
var mobileMoneyCountries = map[string]bool{
	"NG": true, // Nigeria
	"GH": true, // Ghana
	"KE": true, // Kenya
	"UG": true, // Uganda
	"TZ": true, // Tanzania
	"RW": true, // Rwanda
	"ZM": true, // Zambia
	"CM": true, // Cameroon
	"CI": true, // Ivory Coast
	"SN": true, // Senegal
	"MW": true, // Malawi
	"XF": true, // Francophone zone aggregate
}

// Router picks the money-movement provider for a destination. It holds
// no state; the enable switches come from the config passed per call so
// a flag flip applies to the very next decision.
type Router struct{}

func NewRouter() *Router {
	return &Router{}
}

// Route returns the provider for the given destination, or a typed
// routing error. It never mutates anything.
func (r *Router) Route(details entities.PaymentDetails, cfg *entities.PaymentConfig) (entities.Provider, error) {
	country := strings.ToUpper(strings.TrimSpace(details.Country()))
	if country == "" {
		return "", &entities.RoutingError{
			Code:   entities.RoutingCountryNotSupported,
			Method: details.Method,
		}
	}

	if sanctionedCountries[country] {
		return "", &entities.RoutingError{
			Code:    entities.RoutingCountrySanctioned,
			Country: country,
			Method:  details.Method,
		}
	}

	switch details.Method {
	case entities.MethodMobileMoney:
		if !mobileMoneyCountries[country] {
			return "", &entities.RoutingError{
				Code:    entities.RoutingMethodNotAvailable,
				Country: country,
				Method:  details.Method,
			}
		}
		if !cfg.ProviderEnabled(entities.ProviderFlutterwave) {
			return "", &entities.RoutingError{
				Code:    entities.RoutingProviderDisabled,
				Country: country,
				Method:  details.Method,
			}
		}
		return entities.ProviderFlutterwave, nil

	case entities.MethodBankTransfer:
		if !cfg.ProviderEnabled(entities.ProviderWise) {
			return "", &entities.RoutingError{
				Code:    entities.RoutingProviderDisabled,
				Country: country,
				Method:  details.Method,
			}
		}
		return entities.ProviderWise, nil

	default:
		return "", &entities.RoutingError{
			Code:    entities.RoutingMethodNotAvailable,
			Country: country,
			Method:  details.Method,
		}
	}
}
