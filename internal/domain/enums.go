package domain

// EventType is the kind of incident that caused the disruption.
type EventType string

const (
	EventTyphoon          EventType = "Typhoon"
	EventHeavyRain        EventType = "Heavy_Rain"
	EventEarthquake       EventType = "Earthquake"
	EventEquipmentFailure EventType = "Equipment_Failure"
)

// Status is the operational state described by an announcement version.
type Status string

const (
	StatusSuspended          Status = "Suspended"
	StatusPartialOperation   Status = "Partial_Operation"
	StatusResumedSingleTrack Status = "Resumed_Single_Track"
	StatusResumedNormal      Status = "Resumed_Normal"
)

// Rank orders statuses by how far service has recovered. Unknown values rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusSuspended:
		return 1
	case StatusPartialOperation:
		return 2
	case StatusResumedSingleTrack:
		return 3
	case StatusResumedNormal:
		return 4
	default:
		return 0
	}
}

// ServiceType describes how service was restored.
type ServiceType string

const (
	ServiceNormalTrain      ServiceType = "normal_train"
	ServiceShuttle          ServiceType = "shuttle_service"
	ServicePartialOperation ServiceType = "partial_operation"
)

// Category is the coarse classification of an announcement.
type Category string

const (
	CategorySuspension       Category = "Disruption_Suspension"
	CategoryUpdate           Category = "Disruption_Update"
	CategoryResumption       Category = "Disruption_Resumption"
	CategoryWeather          Category = "Weather_Related"
	CategoryGeneralOperation Category = "General_Operation"
)

var (
	eventTypes = map[EventType]bool{
		EventTyphoon: true, EventHeavyRain: true, EventEarthquake: true, EventEquipmentFailure: true,
	}
	statuses = map[Status]bool{
		StatusSuspended: true, StatusPartialOperation: true, StatusResumedSingleTrack: true, StatusResumedNormal: true,
	}
	serviceTypes = map[ServiceType]bool{
		ServiceNormalTrain: true, ServiceShuttle: true, ServicePartialOperation: true,
	}
	categories = map[Category]bool{
		CategorySuspension: true, CategoryUpdate: true, CategoryResumption: true,
		CategoryWeather: true, CategoryGeneralOperation: true,
	}
)

// Valid reports whether e is one of the enumerated event types.
func (e EventType) Valid() bool { return eventTypes[e] }

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool { return statuses[s] }

// Valid reports whether t is one of the enumerated service types.
func (t ServiceType) Valid() bool { return serviceTypes[t] }

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool { return categories[c] }
