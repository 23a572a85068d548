package engine

import (
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"datavista/internal/models"
)

const (
	topProductsLimit = 20
	topStatesLimit   = 30
)

type aggStats struct {
	Rev   float64
	Trans int
}

// dict assigns dense ids to strings in first-seen order.
type dict struct {
	ids  map[string]int
	list []string
}

func newDict() *dict { return &dict{ids: make(map[string]int)} }

func (d *dict) id(s string) int {
	if id, ok := d.ids[s]; ok {
		return id
	}
	id := len(d.list)
	d.ids[s] = id
	d.list = append(d.list, s)
	return id
}

// Aggregate builds the chart feeds for the dashboard: per-country revenue,
// top products, top states and monthly volume split by year.
func Aggregate(records []models.Record) *models.DashboardData {
	// 1. Dictionary encode the dimensions once
	countries, states, products := newDict(), newDict(), newDict()
	countryIDs := make([]int, len(records))
	stateIDs := make([]int, len(records))
	productIDs := make([]int, len(records))
	monthIDs := make([]int, len(records)) // YYYYMM, 0 when the date is unparseable
	for i, r := range records {
		countryIDs[i] = countries.id(r.Country)
		stateIDs[i] = states.id(r.State)
		productIDs[i] = products.id(r.Product)
		monthIDs[i] = yearMonth(r.Date)
	}

	numCountries, numStates, numProds := len(countries.list), len(states.list), len(products.list)

	// 2. Workers
	numWorkers := runtime.NumCPU()
	if numWorkers > len(records) {
		numWorkers = len(records)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := len(records) / numWorkers

	type partialAgg struct {
		prodSold  []float64
		prodUnits []int
		stateRev  []float64
		monthRev  map[int]float64
		// countries x products, flattened
		matrix []aggStats
	}

	results := make(chan *partialAgg, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if i == numWorkers-1 {
			end = len(records)
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			p := &partialAgg{
				prodSold:  make([]float64, numProds),
				prodUnits: make([]int, numProds),
				stateRev:  make([]float64, numStates),
				monthRev:  make(map[int]float64),
				matrix:    make([]aggStats, numCountries*numProds),
			}
			for j := s; j < e; j++ {
				rev := records[j].Sales
				pid := productIDs[j]

				p.prodSold[pid] += rev
				p.prodUnits[pid]++
				p.stateRev[stateIDs[j]] += rev
				if m := monthIDs[j]; m > 0 {
					p.monthRev[m] += rev
				}

				idx := countryIDs[j]*numProds + pid
				p.matrix[idx].Rev += rev
				p.matrix[idx].Trans++
			}
			results <- p
		}(start, end)
	}

	go func() { wg.Wait(); close(results) }()

	// 3. Merge
	finalProdSold := make([]float64, numProds)
	finalProdUnits := make([]int, numProds)
	finalStateRev := make([]float64, numStates)
	finalMonthRev := make(map[int]float64)
	finalMatrix := make([]aggStats, numCountries*numProds)

	for p := range results {
		for i := 0; i < numProds; i++ {
			finalProdSold[i] += p.prodSold[i]
			finalProdUnits[i] += p.prodUnits[i]
		}
		for i := 0; i < numStates; i++ {
			finalStateRev[i] += p.stateRev[i]
		}
		for m, v := range p.monthRev {
			finalMonthRev[m] += v
		}
		for i := range p.matrix {
			if p.matrix[i].Trans > 0 {
				finalMatrix[i].Rev += p.matrix[i].Rev
				finalMatrix[i].Trans += p.matrix[i].Trans
			}
		}
	}

	// 4. Build result
	data := &models.DashboardData{
		CountryStats: make([]models.CountryStat, 0, numCountries),
		TopProducts:  make([]models.TopItem, 0, numProds),
		TopStates:    make([]models.TopState, 0, numStates),
		MonthlySales: make(map[string][]models.MonthlyItem),
	}

	countryTotals := make([]aggStats, numCountries)
	for i, stats := range finalMatrix {
		if stats.Trans > 0 {
			cid := i / numProds
			countryTotals[cid].Rev += stats.Rev
			countryTotals[cid].Trans += stats.Trans
		}
	}
	for cid, stats := range countryTotals {
		if stats.Trans > 0 {
			data.CountryStats = append(data.CountryStats, models.CountryStat{
				Country: countries.list[cid], Revenue: stats.Rev, Transactions: stats.Trans,
			})
		}
	}
	sort.SliceStable(data.CountryStats, func(i, j int) bool { return data.CountryStats[i].Revenue > data.CountryStats[j].Revenue })

	for i, sold := range finalProdSold {
		if finalProdUnits[i] > 0 {
			data.TopProducts = append(data.TopProducts, models.TopItem{
				Name: products.list[i], Value: sold, Units: finalProdUnits[i],
			})
		}
	}
	sort.SliceStable(data.TopProducts, func(i, j int) bool { return data.TopProducts[i].Value > data.TopProducts[j].Value })
	if len(data.TopProducts) > topProductsLimit {
		data.TopProducts = data.TopProducts[:topProductsLimit]
	}

	for i, rev := range finalStateRev {
		data.TopStates = append(data.TopStates, models.TopState{Name: states.list[i], Revenue: rev})
	}
	sort.SliceStable(data.TopStates, func(i, j int) bool { return data.TopStates[i].Revenue > data.TopStates[j].Revenue })
	if len(data.TopStates) > topStatesLimit {
		data.TopStates = data.TopStates[:topStatesLimit]
	}

	months := make([]int, 0, len(finalMonthRev))
	for m := range finalMonthRev {
		months = append(months, m)
	}
	sort.Ints(months)
	for _, m := range months {
		year := strconv.Itoa(m / 100)
		data.MonthlySales[year] = append(data.MonthlySales[year], models.MonthlyItem{
			Month:  time.Month(m % 100).String(),
			Volume: finalMonthRev[m],
		})
	}

	return data
}

// yearMonth parses "2024-01-05" into 202401. Anything else yields 0.
func yearMonth(date string) int {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return 0
	}
	return t.Year()*100 + int(t.Month())
}
