package audit

import "strconv"

func formatEntry(id int64) string {
	if id == 0 {
		return ""
	}
	return "ledger:" + strconv.FormatInt(id, 10)
}

func formatRedemption(id int64) string {
	return "redemption:" + strconv.FormatInt(id, 10)
}
