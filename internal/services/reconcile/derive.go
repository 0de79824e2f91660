package reconcile

import (
	"sort"
	"time"

	"InvSight/internal/domain/models"
)

type deriver struct {
	plan Plan
	rows []models.Row
	cols *columnSet
}

func (d *deriver) run() {
	times := d.calendar()
	d.history(times)
	d.products()
	d.ratios()
}

// calendar normalizes the timestamp column to time values and adds calendar parts.
func (d *deriver) calendar() []time.Time {
	times := make([]time.Time, len(d.rows))
	ts := d.plan.Timestamp
	if ts == "" || !d.cols.has(ts) {
		return times
	}
	for _, c := range []string{ColYear, ColMonth, ColDay, ColDayOfWeek, ColIsWeekend} {
		d.cols.add(c)
	}
	for i, row := range d.rows {
		t, ok := ParseTimestamp(row.Get(ts))
		if !ok {
			row[ts] = models.Null
			for _, c := range []string{ColYear, ColMonth, ColDay, ColDayOfWeek, ColIsWeekend} {
				row[c] = models.Null
			}
			continue
		}
		times[i] = t
		row[ts] = models.Time(t)
		dow := (int(t.Weekday()) + 6) % 7 // Monday = 0
		row[ColYear] = models.Num(float64(t.Year()))
		row[ColMonth] = models.Num(float64(t.Month()))
		row[ColDay] = models.Num(float64(t.Day()))
		row[ColDayOfWeek] = models.Num(float64(dow))
		row[ColIsWeekend] = models.Bool(dow >= 5)
	}
	return times
}

// groups returns row indices per subject, each ordered by timestamp with ties kept in source order.
func (d *deriver) groups(times []time.Time) [][]int {
	byKey := make(map[string][]int)
	var order []string
	subj := d.plan.Subject
	for i, row := range d.rows {
		k := ""
		if subj != "" {
			k, _ = CanonicalKey(row.Get(subj))
		}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], i)
	}
	out := make([][]int, 0, len(order))
	for _, k := range order {
		idx := byKey[k]
		sort.SliceStable(idx, func(a, b int) bool {
			return times[idx[a]].Before(times[idx[b]])
		})
		out = append(out, idx)
	}
	return out
}

// history computes lags and trailing rolling aggregates; only rows at or before a row contribute to it.
func (d *deriver) history(times []time.Time) {
	if len(d.plan.Lags) == 0 && len(d.plan.Rolling) == 0 {
		return
	}
	for _, l := range d.plan.Lags {
		d.cols.add(l.Name)
	}
	for _, r := range d.plan.Rolling {
		for _, w := range r.Windows {
			for _, fn := range r.Funcs {
				d.cols.add(RollingName(r.Column, w, fn))
			}
		}
	}

	for _, idx := range d.groups(times) {
		for _, l := range d.plan.Lags {
			for pos, i := range idx {
				if pos < l.Periods {
					d.rows[i][l.Name] = models.Null
					continue
				}
				d.rows[i][l.Name] = d.rows[idx[pos-l.Periods]].Get(l.Column)
			}
		}
		for _, r := range d.plan.Rolling {
			// prefix sums over non-null observations
			sums := make([]float64, len(idx)+1)
			counts := make([]int, len(idx)+1)
			for pos, i := range idx {
				sums[pos+1], counts[pos+1] = sums[pos], counts[pos]
				if f, ok := d.rows[i].Get(r.Column).Float(); ok {
					sums[pos+1] += f
					counts[pos+1]++
				}
			}
			for _, w := range r.Windows {
				for pos, i := range idx {
					from := pos + 1 - w
					if from < 0 {
						from = 0
					}
					sum := sums[pos+1] - sums[from]
					n := counts[pos+1] - counts[from]
					for _, fn := range r.Funcs {
						name := RollingName(r.Column, w, fn)
						if n == 0 {
							d.rows[i][name] = models.Null
							continue
						}
						if fn == "sum" {
							d.rows[i][name] = models.Num(sum)
						} else {
							d.rows[i][name] = models.Num(sum / float64(n))
						}
					}
				}
			}
		}
	}
}

func (d *deriver) products() {
	for _, p := range d.plan.Products {
		d.cols.add(p.Name)
		for _, row := range d.rows {
			acc := 1.0
			valid := true
			for _, f := range p.Factors {
				v, ok := row.Get(f).Float()
				if !ok {
					valid = false
					break
				}
				acc *= v
			}
			if valid {
				row[p.Name] = models.Num(acc)
			} else {
				row[p.Name] = models.Null
			}
		}
	}
}

func (d *deriver) ratios() {
	for _, r := range d.plan.Ratios {
		d.cols.add(r.Name)
		for _, row := range d.rows {
			num, ok1 := row.Get(r.Numerator).Float()
			den, ok2 := row.Get(r.Denominator).Float()
			if !ok1 || !ok2 {
				row[r.Name] = models.Null
				continue
			}
			row[r.Name] = models.Num(num / (den + r.Offset + d.plan.Epsilon))
		}
	}
}
