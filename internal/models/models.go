package models

// Record is a single flat sales row.
type Record struct {
	Date     string  `json:"date"`
	Country  string  `json:"country"`
	State    string  `json:"state"`
	City     string  `json:"city"`
	Product  string  `json:"product"`
	Category string  `json:"category"`
	Sales    float64 `json:"sales"`
}

type DashboardData struct {
	CountryStats []CountryStat            `json:"country_stats"`
	TopProducts  []TopItem                `json:"top_products"`
	TopStates    []TopState               `json:"top_states"`
	MonthlySales map[string][]MonthlyItem `json:"monthly_sales"`
}

type CountryStat struct {
	Country      string  `json:"country"`
	Revenue      float64 `json:"revenue"`
	Transactions int     `json:"transactions"`
}

type TopItem struct {
	Name  string  `json:"product_name"`
	Value float64 `json:"sales"`
	Units int     `json:"units,omitempty"`
}

type TopState struct {
	Name    string  `json:"state"`
	Revenue float64 `json:"revenue"`
}

type MonthlyItem struct {
	Month  string  `json:"month"`
	Volume float64 `json:"sales"`
}
