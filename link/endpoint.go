package link

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Nordic UART Service UUIDs, the de facto standard for serial-style data
// over BLE. Peers expose the TX characteristic as a notify source.
const (
	UARTServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	UARTRXCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // peer receives (write)
	UARTTXCharUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // peer transmits (notify)
)

// Characteristic describes one GATT characteristic discovered on a peer.
type Characteristic struct {
	UUID   string
	Notify bool
	Read   bool
	Write  bool
}

// Service describes one GATT service discovered on a peer.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// DeviceProfile is the GATT profile of a connected peer, as reported by the
// platform's discovery layer.
type DeviceProfile struct {
	Name     string
	Services []Service
}

// SetupStatus is the outcome of resolving a notification endpoint on a
// connected peer.
type SetupStatus uint8

const (
	// SetupOK indicates the notify characteristic was found.
	SetupOK SetupStatus = iota
	// SetupServiceNotFound indicates the peer does not expose the service.
	SetupServiceNotFound
	// SetupCharacteristicNotFound indicates the service exists but the
	// characteristic is missing or does not support notifications.
	SetupCharacteristicNotFound
)

// String returns a human-readable name for the setup status.
func (s SetupStatus) String() string {
	switch s {
	case SetupOK:
		return "ok"
	case SetupServiceNotFound:
		return "service_not_found"
	case SetupCharacteristicNotFound:
		return "characteristic_not_found"
	default:
		return "unknown"
	}
}

// Endpoint identifies the resolved notification source on a peer.
type Endpoint struct {
	ServiceUUID        string
	CharacteristicUUID string
}

// SetupResult is the explicit outcome of connection setup. Failures are
// values, not thrown errors: callers branch on Status or use Err.
type SetupResult struct {
	Status   SetupStatus
	Endpoint *Endpoint
	Detail   string
}

// Err returns nil for a successful setup, or an error describing the
// failure variant.
func (r SetupResult) Err() error {
	if r.Status == SetupOK {
		return nil
	}
	return fmt.Errorf("endpoint setup failed: %s: %s", r.Status, r.Detail)
}

// ResolveEndpoint walks a discovered GATT profile for the characteristic the
// chunk stream will be subscribed on. The characteristic must support
// notifications. UUID comparison is case-insensitive.
func ResolveEndpoint(profile DeviceProfile, serviceUUID, characteristicUUID string) SetupResult {
	logrus.WithFields(logrus.Fields{
		"function":       "ResolveEndpoint",
		"device":         profile.Name,
		"service":        serviceUUID,
		"characteristic": characteristicUUID,
	}).Debug("Resolving notification endpoint")

	var service *Service
	for i := range profile.Services {
		if strings.EqualFold(profile.Services[i].UUID, serviceUUID) {
			service = &profile.Services[i]
			break
		}
	}
	if service == nil {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveEndpoint",
			"device":   profile.Name,
			"service":  serviceUUID,
		}).Warn("Service not found on peer")
		return SetupResult{
			Status: SetupServiceNotFound,
			Detail: fmt.Sprintf("service %s not exposed by %q", serviceUUID, profile.Name),
		}
	}

	for _, char := range service.Characteristics {
		if !strings.EqualFold(char.UUID, characteristicUUID) {
			continue
		}
		if !char.Notify {
			return SetupResult{
				Status: SetupCharacteristicNotFound,
				Detail: fmt.Sprintf("characteristic %s does not support notifications", characteristicUUID),
			}
		}

		logrus.WithFields(logrus.Fields{
			"function":       "ResolveEndpoint",
			"device":         profile.Name,
			"service":        service.UUID,
			"characteristic": char.UUID,
		}).Info("Notification endpoint resolved")

		return SetupResult{
			Status: SetupOK,
			Endpoint: &Endpoint{
				ServiceUUID:        service.UUID,
				CharacteristicUUID: char.UUID,
			},
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":       "ResolveEndpoint",
		"device":         profile.Name,
		"service":        service.UUID,
		"characteristic": characteristicUUID,
	}).Warn("Characteristic not found in service")

	return SetupResult{
		Status: SetupCharacteristicNotFound,
		Detail: fmt.Sprintf("characteristic %s not found in service %s", characteristicUUID, service.UUID),
	}
}
