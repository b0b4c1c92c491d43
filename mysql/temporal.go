package mysql

import "fmt"

// Temporal decode helpers for the packed MySQL 5.6+ TIMESTAMP2/DATETIME2/TIME2 types, per
// spec §4.3. Each packs an integer part big-endian with a bias added so the on-wire bytes
// sort correctly, followed by a fractional-seconds part whose byte width depends on the
// column's declared decimals (fsp) 0..6.

// fracBytesForFSP returns how many bytes of fractional seconds follow the packed integer
// part for a given fsp (0..6): 0 for fsp 0-1 (packed into a nibble elsewhere), 1 for 2-3,
// 2 for 4-5, 3 for 6... but MySQL actually always reserves ceil(fsp/2) bytes.
func fracBytesForFSP(fsp int) int {
	switch {
	case fsp <= 0:
		return 0
	case fsp <= 2:
		return 1
	case fsp <= 4:
		return 2
	default:
		return 3
	}
}

func decodeFractionalSeconds(data []byte, fsp int) (int64, error) {
	n := fracBytesForFSP(fsp)
	if n == 0 {
		return 0, nil
	}
	if len(data) < n {
		return 0, ErrMalformedEvent
	}
	buf := make([]byte, 3)
	copy(buf, data[:n])
	v := int64(BFixedLengthInt(buf))
	switch n {
	case 1:
		v <<= 16
	case 2:
		v <<= 8
	}
	return v, nil
}

// decodeTimestamp2 decodes a TIMESTAMP2 column: a 4-byte big-endian unix-seconds integer
// followed by the fsp-width fractional part. TIMESTAMP2 is UTC; callers that want a local
// rendering must apply the session timezone themselves.
func DecodeTimestamp2(data []byte, fsp int) (string, int, error) {
	if len(data) < 4 {
		return "", 0, ErrMalformedEvent
	}
	sec := int64(BFixedLengthInt(data[:4]))
	n := fracBytesForFSP(fsp)
	usec, err := decodeFractionalSeconds(data[4:], fsp)
	if err != nil {
		return "", 0, err
	}
	total := 4 + n
	if sec == 0 && usec == 0 {
		return "0000-00-00 00:00:00", total, nil
	}
	t := secondsToCivil(sec)
	return formatDatetime(t, usec, fsp), total, nil
}

// datetime2Bias is added to the packed 40-bit DATETIME2 integer before unpacking year/month
// /day/hour/minute/second, undoing the server's bias that lets the packed value sort
// correctly as a plain big-endian integer.
const datetime2Bias = 0x8000000000

func DecodeDatetime2(data []byte, fsp int) (string, int, error) {
	if len(data) < 5 {
		return "", 0, ErrMalformedEvent
	}
	packed := int64(BFixedLengthInt(data[:5])) - datetime2Bias

	ymd := packed >> 22
	ym := ymd >> 5
	day := int(ymd % (1 << 5))
	month := int(ym % 13)
	year := int(ym / 13)

	hms := packed % (1 << 22)
	second := int(hms % (1 << 6))
	minute := int((hms >> 6) % (1 << 6))
	hour := int(hms >> 12)

	n := fracBytesForFSP(fsp)
	usec, err := decodeFractionalSeconds(data[5:], fsp)
	if err != nil {
		return "", 0, err
	}
	total := 5 + n

	if year == 0 && month == 0 && day == 0 && hour == 0 && minute == 0 && second == 0 && usec == 0 {
		return "0000-00-00 00:00:00", total, nil
	}

	t := civilDatetime{year, month, day, hour, minute, second}
	return formatDatetime(t, usec, fsp), total, nil
}

// time2Bias mirrors datetime2Bias for the 24-bit packed TIME2 integer part.
const time2Bias = 0x800000

func DecodeTime2(data []byte, fsp int) (string, int, error) {
	if len(data) < 3 {
		return "", 0, ErrMalformedEvent
	}
	intPart := int64(BFixedLengthInt(data[:3])) - time2Bias

	n := fracBytesForFSP(fsp)
	if len(data) < 3+n {
		return "", 0, ErrMalformedEvent
	}

	negative := intPart < 0
	var frac int64

	if n > 0 {
		buf := make([]byte, 3)
		copy(buf, data[3:3+n])
		raw := int64(BFixedLengthInt(buf))
		switch n {
		case 1:
			raw <<= 16
		case 2:
			raw <<= 8
		}
		if negative {
			// When the integer part is negative, the fractional part is stored in
			// "reverse" order relative to the positive case: it must be negated and,
			// if nonzero, borrows one whole second from the integer part.
			if raw != 0 {
				intPart++
				raw = (1 << 24) - raw
			}
		}
		frac = raw
	}

	abs := intPart
	if abs < 0 {
		abs = -abs
	}

	hour := int((abs >> 12) % (1 << 10))
	minute := int((abs >> 6) % (1 << 6))
	second := int(abs % (1 << 6))

	sign := ""
	if negative && (hour != 0 || minute != 0 || second != 0 || frac != 0) {
		sign = "-"
	}

	total := 3 + n
	if fsp > 0 {
		usecStr := padLeft(uint64(frac), 6)[:fsp]
		return fmt.Sprintf("%s%02d:%02d:%02d.%s", sign, hour, minute, second, usecStr), total, nil
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, hour, minute, second), total, nil
}

type civilDatetime struct {
	year, month, day, hour, minute, second int
}

// secondsToCivil converts a unix-seconds timestamp to civil y/m/d h:m:s using a proleptic
// Gregorian calendar, matching the server's own TIMESTAMP2 -> DATETIME conversion (assumed
// UTC session time zone; the caller is responsible for any zone adjustment).
func secondsToCivil(sec int64) civilDatetime {
	const daysPer400Years = 146097
	days := sec / 86400
	rem := sec % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	hour := int(rem / 3600)
	minute := int((rem % 3600) / 60)
	second := int(rem % 60)

	days += 719468
	era := days / daysPer400Years
	if days < 0 {
		era = (days - daysPer400Years + 1) / daysPer400Years
	}
	doe := days - era*daysPer400Years
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	m := mp + 3
	if mp >= 10 {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}

	return civilDatetime{int(y), int(m), int(d), hour, minute, second}
}

func formatDatetime(t civilDatetime, usec int64, fsp int) string {
	base := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", t.year, t.month, t.day, t.hour, t.minute, t.second)
	if fsp == 0 {
		return base
	}
	usecStr := padLeft(uint64(usec), 6)[:fsp]
	return base + "." + usecStr
}
