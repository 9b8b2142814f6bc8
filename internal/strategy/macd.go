package strategy

// MACD: линия = EMA(fast) - EMA(slow), сигнальная = EMA(линии, signal).
// Compute отдаёт последние два значения обеих линий — пересечение детектит
// вызывающая сторона. ok=false пока серия короче slow+signal.
type MACD struct {
	Fast   int
	Slow   int
	Signal int
}

func NewMACD(fast, slow, signal int) MACD {
	if fast >= slow {
		fast, slow = 12, 26
	}
	return MACD{Fast: fast, Slow: slow, Signal: signal}
}

type MACDValue struct {
	PrevMACD, CurrMACD     float64
	PrevSignal, CurrSignal float64
}

func (m MACD) Compute(closes []float64) (MACDValue, bool) {
	if len(closes) < m.Slow+m.Signal {
		return MACDValue{}, false
	}

	// серия значений MACD-линии начиная с момента, когда медленная EMA готова
	macdLine := make([]float64, 0, len(closes)-m.Slow+1)
	for i := m.Slow - 1; i < len(closes); i++ {
		window := closes[:i+1]
		macdLine = append(macdLine, ema(window, m.Fast)-ema(window, m.Slow))
	}
	if len(macdLine) < m.Signal+1 {
		return MACDValue{}, false
	}

	signalLine := make([]float64, 0, len(macdLine)-m.Signal+1)
	for i := m.Signal - 1; i < len(macdLine); i++ {
		signalLine = append(signalLine, ema(macdLine[:i+1], m.Signal))
	}
	if len(signalLine) < 2 {
		return MACDValue{}, false
	}

	return MACDValue{
		PrevMACD:   macdLine[len(macdLine)-2],
		CurrMACD:   macdLine[len(macdLine)-1],
		PrevSignal: signalLine[len(signalLine)-2],
		CurrSignal: signalLine[len(signalLine)-1],
	}, true
}

// ema — экспоненциальное среднее: сид SMA первых period точек, дальше классика.
func ema(data []float64, period int) float64 {
	if len(data) == 0 || period <= 0 {
		return 0
	}
	k := 2.0 / (float64(period) + 1)

	seedLen := period
	if seedLen > len(data) {
		seedLen = len(data)
	}
	sum := 0.0
	for _, v := range data[:seedLen] {
		sum += v
	}
	val := sum / float64(seedLen)

	for _, price := range data[seedLen:] {
		val = price*k + val*(1-k)
	}
	return val
}
