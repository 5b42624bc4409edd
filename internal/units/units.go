// Package units provides shared constants and conversions for sensor values
package units

// Temperature unit constants
const (
	Celsius    = "c"
	Fahrenheit = "f"
)

// ValidTemperatureUnits contains all valid temperature unit values
var ValidTemperatureUnits = []string{Celsius, Fahrenheit}

// IsValidTemperatureUnit checks if the given unit is in the list of valid units
func IsValidTemperatureUnit(unit string) bool {
	for _, validUnit := range ValidTemperatureUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertTemperature converts a temperature from degrees Celsius to the
// target units. Readings are stored in Celsius.
func ConvertTemperature(tempC float64, targetUnits string) float64 {
	switch targetUnits {
	case Fahrenheit:
		return tempC*9.0/5.0 + 32.0
	case Celsius:
		return tempC // no conversion needed
	default:
		return tempC // default to Celsius if unknown unit
	}
}

// PaToHPa converts a pressure in pascals to hectopascals.
func PaToHPa(pa float64) float64 {
	return pa / 100.0
}
