package notify

import (
	"fmt"
	"strings"
)

// Text 渲染发给顾客的确认消息正文。
func Text(c Confirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s様\n", c.UserName)
	b.WriteString("ご予約ありがとうございます！\n\n")
	fmt.Fprintf(&b, "予約番号: %s\n", c.ReservationNumber)
	fmt.Fprintf(&b, "受取日: %s\n\n", c.PickupDate)
	b.WriteString("ご注文内容\n")
	for _, it := range c.Items {
		name := it.Name
		if it.VariationName != "" {
			name += "（" + it.VariationName + "）"
		}
		fmt.Fprintf(&b, "・%s × %d  ¥%s\n", name, it.Quantity, yen(it.Price*int64(it.Quantity)))
	}
	fmt.Fprintf(&b, "\n合計: ¥%s\n", yen(c.TotalAmount))
	if c.CancelURL != "" {
		fmt.Fprintf(&b, "\nキャンセルはこちら:\n%s", c.CancelURL)
	}
	return b.String()
}

// yen 按千位加逗号：1234567 -> "1,234,567"
func yen(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	var out []byte
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
