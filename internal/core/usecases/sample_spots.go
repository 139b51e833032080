package usecases

import "github.com/samirrijal/parksmart/internal/core/domain"

// SampleSpots returns the built-in Hyderabad facilities used when no spot
// repository is configured.
func SampleSpots() []domain.ParkingSpot {
	return []domain.ParkingSpot{
		{
			ID: "1", Name: "Kukatpally Parking Zone",
			Location: domain.GeoPoint{Lat: 17.4947, Lon: 78.3996},
			Capacity: 60, Available: 25,
			PricePerHour: domain.Money{Amount: 4000, Currency: "INR"},
		},
		{
			ID: "2", Name: "KPHB Colony Parking",
			Location: domain.GeoPoint{Lat: 17.4920, Lon: 78.3972},
			Capacity: 40, Available: 15,
			PricePerHour: domain.Money{Amount: 3000, Currency: "INR"},
		},
		{
			ID: "3", Name: "Forum Mall Parking",
			Location: domain.GeoPoint{Lat: 17.4937, Lon: 78.3923},
			Capacity: 120, Available: 50,
			PricePerHour: domain.Money{Amount: 5000, Currency: "INR"},
		},
		{
			ID: "4", Name: "Metro Station Parking",
			Location: domain.GeoPoint{Lat: 17.4957, Lon: 78.4008},
			Capacity: 80, Available: 35,
			PricePerHour: domain.Money{Amount: 2000, Currency: "INR"},
		},
	}
}
