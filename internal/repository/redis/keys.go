package redis

import "fmt"

const ns = "raffle:v1"

func KeyTicketPage(limit, offset int) string {
	return fmt.Sprintf("%s:tickets:page:%d:%d", ns, limit, offset)
}

// KeyTicketPagePattern matches every cached ticket page, for invalidation.
func KeyTicketPagePattern() string {
	return ns + ":tickets:page:*"
}

func KeyAvailability() string {
	return ns + ":tickets:availability"
}

func KeySession(id string) string {
	return fmt.Sprintf("%s:session:%s", ns, id)
}

func KeyIdemLock(idemKey string) string {
	return fmt.Sprintf("%s:idem:lock:%s", ns, idemKey)
}

func ChannelTicketsChanged() string {
	return ns + ":tickets:changed"
}
