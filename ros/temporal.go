package ros

import "github.com/pkg/errors"

const (
	maxUint32          = int64(^uint32(0))
	secondInNanosecond = 1000000000
)

var errTemporalRange = errors.New("time is out of range")

// normalizeTemporal folds nsec into [0, 1e9) and panics when the result
// does not fit the unsigned wire representation.
func normalizeTemporal(sec int64, nsec int64) (uint32, uint32) {
	sec, nsec, err := normalizeTemporalChecked(sec, nsec)
	if err != nil {
		panic(err)
	}
	return uint32(sec), uint32(nsec)
}

func normalizeTemporalChecked(sec int64, nsec int64) (int64, int64, error) {
	sec += nsec / secondInNanosecond
	nsec %= secondInNanosecond
	if nsec < 0 {
		sec--
		nsec += secondInNanosecond
	}
	if sec < 0 || sec > maxUint32 {
		return 0, 0, errors.Wrapf(errTemporalRange, "%ds", sec)
	}
	return sec, nsec, nil
}

func cmpUint64(lhs, rhs uint64) int {
	switch {
	case lhs > rhs:
		return 1
	case lhs < rhs:
		return -1
	}
	return 0
}

// temporal is the {sec, nsec} pair shared by Time and Duration.
type temporal struct {
	Sec  uint32
	NSec uint32
}

func (t *temporal) IsZero() bool {
	return t.Sec == 0 && t.NSec == 0
}

func (t *temporal) ToSec() float64 {
	return float64(t.Sec) + float64(t.NSec)*1e-9
}

func (t *temporal) ToNSec() uint64 {
	return uint64(t.Sec)*secondInNanosecond + uint64(t.NSec)
}

func (t *temporal) FromSec(sec float64) {
	t.FromNSec(uint64(sec * 1e9))
}

func (t *temporal) FromNSec(nsec uint64) {
	t.Sec, t.NSec = normalizeTemporal(int64(nsec/secondInNanosecond), int64(nsec%secondInNanosecond))
}
