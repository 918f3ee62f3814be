package ranging

import "github.com/michcald/dw1000"

// The chip's receiver reports ranges with a signal strength dependent bias,
// which over distance follows the calibration curves of Decawave APS011. The
// tables below give, per channel and PRF, the correction in centimeters to
// add to a measured range up to the entry's upper bound in centimeters.

type biasEntry struct {
	upTo int32
	bias int32
}

var biasCh2PRF64 = []biasEntry{
	{25, -17}, {50, -16}, {75, -14}, {100, -13}, {150, -11}, {225, -10},
	{300, -9}, {350, -8}, {425, -7}, {475, -6}, {525, -5}, {600, -4},
	{650, -3}, {700, -2}, {775, -1}, {825, 0}, {925, 1}, {1050, 2},
	{1225, 3}, {1700, 4}, {2225, 5}, {2625, 6}, {3450, 7}, {65535, 8},
}

var biasCh3PRF64 = []biasEntry{
	{25, -17}, {50, -15}, {75, -14}, {100, -12}, {125, -11}, {200, -10},
	{250, -9}, {325, -8}, {375, -7}, {425, -6}, {475, -5}, {525, -4},
	{575, -3}, {625, -2}, {675, -1}, {750, 0}, {825, 1}, {925, 2},
	{1100, 3}, {1500, 4}, {1975, 5}, {2325, 6}, {3050, 7}, {65535, 8},
}

var biasCh5PRF64 = []biasEntry{
	{25, -17}, {50, -14}, {75, -12}, {100, -11}, {150, -10}, {175, -9},
	{225, -8}, {250, -7}, {300, -6}, {325, -5}, {375, -4}, {400, -3},
	{425, -2}, {475, -1}, {525, 0}, {575, 1}, {650, 2}, {750, 3},
	{1050, 4}, {1375, 5}, {1625, 6}, {2125, 7}, {65535, 8},
}

func biasTable(ch dw1000.Channel, prf dw1000.PRF) []biasEntry {
	if prf != dw1000.PRF64MHz {
		return nil
	}
	switch ch {
	case dw1000.Channel2:
		return biasCh2PRF64
	case dw1000.Channel3:
		return biasCh3PRF64
	case dw1000.Channel5:
		return biasCh5PRF64
	default:
		return nil
	}
}

// CorrectedDistance applies the channel and PRF dependent range bias of the
// receiver to a distance in meters computed by Distance. Calibration tables
// exist for channels 2, 3 and 5 at 64MHz PRF; other combinations are
// returned unchanged.
func CorrectedDistance(distance float64, ch dw1000.Channel, prf dw1000.PRF) float64 {
	table := biasTable(ch, prf)
	if table == nil {
		return distance
	}
	cm := distance * 100
	bias := table[len(table)-1].bias
	for _, e := range table {
		if cm <= float64(e.upTo) {
			bias = e.bias
			break
		}
	}
	cm += float64(bias)
	if cm < 0 {
		cm = 0
	}
	return cm / 100
}
