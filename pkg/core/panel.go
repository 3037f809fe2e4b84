package core

import "sort"

// PanelValue is one cell of the final panel. Every cell is either a concrete
// value or explicitly missing; there are no implicit nulls.
type PanelValue struct {
	Value   float64
	Missing bool
}

// PanelRow is one output row: a single (country, year, variable) cell.
type PanelRow struct {
	Country  string
	Year     int
	Variable string
	PanelValue
}

// Panel is the final country x year x variable cube. It always covers the
// full cross-product of its countries, years, and variables: absent keys do
// not exist, only explicit missing markers.
type Panel struct {
	countries []string
	years     []int
	variables []string
	cells     map[CellKey]map[string]PanelValue
}

// NewPanel creates a panel covering the full cross-product of the given
// countries, years, and variables, with every cell initialized to missing.
// The axis slices are copied and sorted.
func NewPanel(countries []string, years []int, variables []string) *Panel {
	p := &Panel{
		countries: append([]string(nil), countries...),
		years:     append([]int(nil), years...),
		variables: append([]string(nil), variables...),
		cells:     make(map[CellKey]map[string]PanelValue),
	}
	sort.Strings(p.countries)
	sort.Ints(p.years)
	sort.Strings(p.variables)

	for _, c := range p.countries {
		for _, y := range p.years {
			vars := make(map[string]PanelValue, len(p.variables))
			for _, v := range p.variables {
				vars[v] = PanelValue{Missing: true}
			}
			p.cells[CellKey{Country: c, Year: y}] = vars
		}
	}
	return p
}

// Countries returns the sorted country axis.
func (p *Panel) Countries() []string { return p.countries }

// Years returns the sorted year axis.
func (p *Panel) Years() []int { return p.years }

// Variables returns the sorted variable axis.
func (p *Panel) Variables() []string { return p.variables }

// Set assigns a concrete value to a cell. Cells outside the declared
// cross-product are ignored, keeping the panel's shape fixed.
func (p *Panel) Set(country string, year int, variable string, value float64) {
	vars, ok := p.cells[CellKey{Country: country, Year: year}]
	if !ok {
		return
	}
	if _, ok := vars[variable]; !ok {
		return
	}
	vars[variable] = PanelValue{Value: value}
}

// SetMissing marks a cell explicitly missing, overwriting any prior value.
func (p *Panel) SetMissing(country string, year int, variable string) {
	vars, ok := p.cells[CellKey{Country: country, Year: year}]
	if !ok {
		return
	}
	if _, ok := vars[variable]; !ok {
		return
	}
	vars[variable] = PanelValue{Missing: true}
}

// Get returns the cell value. The second result is false only for cells
// outside the declared cross-product.
func (p *Panel) Get(country string, year int, variable string) (PanelValue, bool) {
	vars, ok := p.cells[CellKey{Country: country, Year: year}]
	if !ok {
		return PanelValue{}, false
	}
	v, ok := vars[variable]
	return v, ok
}

// Rows returns every cell as a row, sorted by (country, year, variable).
// Exactly one row exists per cross-product triple.
func (p *Panel) Rows() []PanelRow {
	rows := make([]PanelRow, 0, len(p.countries)*len(p.years)*len(p.variables))
	for _, c := range p.countries {
		for _, y := range p.years {
			vars := p.cells[CellKey{Country: c, Year: y}]
			for _, v := range p.variables {
				rows = append(rows, PanelRow{Country: c, Year: y, Variable: v, PanelValue: vars[v]})
			}
		}
	}
	return rows
}

// Size returns the total number of cells in the panel.
func (p *Panel) Size() int {
	return len(p.countries) * len(p.years) * len(p.variables)
}
