package netconf

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// NetlinkLister reads live interface addresses from the kernel. Listing is
// read-only; mutation still goes through the whitelisted ip utility.
type NetlinkLister struct{}

func (NetlinkLister) Addresses(iface string) ([]string, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("lookup link %s: %w", iface, err)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addresses on %s: %w", iface, err)
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet != nil {
			out = append(out, a.IPNet.String())
		}
	}
	return out, nil
}
