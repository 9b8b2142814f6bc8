package strategy

// RSI по Уайлдеру. Возвращает (value, ok); ok=false пока в серии меньше
// period+1 точек.
type RSI struct {
	Period     int
	Overbought float64
	Oversold   float64
}

func NewRSI(period int, overbought, oversold float64) RSI {
	if period < 2 {
		period = 2
	}
	return RSI{Period: period, Overbought: overbought, Oversold: oversold}
}

func (r RSI) Compute(closes []float64) (float64, bool) {
	if len(closes) < r.Period+1 {
		return 0, false
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= r.Period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(r.Period)
	avgLoss /= float64(r.Period)

	// сглаживание Уайлдера по остатку серии
	for i := r.Period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(r.Period-1) + gain) / float64(r.Period)
		avgLoss = (avgLoss*float64(r.Period-1) + loss) / float64(r.Period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
