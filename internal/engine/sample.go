package engine

import "datavista/internal/models"

var sampleRecords = []models.Record{
	{Date: "2024-01-05", Country: "USA", State: "California", City: "Los Angeles", Product: "iPhone", Category: "Electronics", Sales: 1000},
	{Date: "2024-01-05", Country: "USA", State: "California", City: "San Diego", Product: "MacBook", Category: "Electronics", Sales: 1500},
	{Date: "2024-01-06", Country: "USA", State: "Texas", City: "Houston", Product: "iPhone", Category: "Electronics", Sales: 1200},
	{Date: "2024-01-06", Country: "USA", State: "Texas", City: "Dallas", Product: "iPad", Category: "Electronics", Sales: 1800},
	{Date: "2024-01-07", Country: "USA", State: "New York", City: "New York City", Product: "MacBook", Category: "Electronics", Sales: 2200},
	{Date: "2024-01-07", Country: "USA", State: "New York", City: "Buffalo", Product: "AirPods", Category: "Accessories", Sales: 400},
}

// SampleRecords returns the built-in demo cube.
func SampleRecords() []models.Record {
	out := make([]models.Record, len(sampleRecords))
	copy(out, sampleRecords)
	return out
}
