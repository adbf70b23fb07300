// Package connection keeps the named groups of peers a user can send to.
// A destination given on the command line is either a group name, a single address or a comma separated list of addresses.
package connection

import (
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"bjoernblessin.de/groupstack/sequencing"
)

var (
	ErrUnknownGroup   = errors.New("unknown group")
	ErrInvalidName    = errors.New("group names must not be empty or contain ':' or ','")
	ErrInvalidAddress = errors.New("invalid IPv4 address and port")
)

type Directory struct {
	mu     sync.RWMutex
	groups map[string][]netip.AddrPort // Members are kept sorted
}

func NewDirectory() *Directory {
	return &Directory{groups: make(map[string][]netip.AddrPort)}
}

// Add creates the group if needed and adds the members that are not in it yet.
func (d *Directory) Add(name string, members ...netip.AddrPort) error {
	if name == "" || strings.ContainsAny(name, ":,") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	group := d.groups[name]
	for _, m := range members {
		i, found := slices.BinarySearchFunc(group, m, netip.AddrPort.Compare)
		if !found {
			group = slices.Insert(group, i, m)
		}
	}
	d.groups[name] = group
	return nil
}

// Remove takes members out of a group. Without members the whole group is removed.
func (d *Directory) Remove(name string, members ...netip.AddrPort) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	group, ok := d.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}

	if len(members) == 0 {
		delete(d.groups, name)
		return nil
	}

	d.groups[name] = slices.DeleteFunc(group, func(a netip.AddrPort) bool {
		return slices.Contains(members, a)
	})
	return nil
}

// Members returns a copy of the group's members.
func (d *Directory) Members(name string) ([]netip.AddrPort, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	group, ok := d.groups[name]
	return slices.Clone(group), ok
}

// Names returns all group names in order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Sorted(maps.Keys(d.groups))
}

// Resolve turns a group name or a list of addresses into a destination.
func (d *Directory) Resolve(target string) (sequencing.Destination, error) {
	if !strings.ContainsAny(target, ":,") {
		members, ok := d.Members(target)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, target)
		}
		return sequencing.To(members...), nil
	}

	return ParseAddrList(target)
}

// ParseAddrList parses "ip:port[,ip:port...]". Only IPv4 is accepted.
func ParseAddrList(s string) (sequencing.Destination, error) {
	var dest sequencing.Destination
	for _, part := range strings.Split(s, ",") {
		addr, err := netip.ParseAddrPort(strings.TrimSpace(part))
		if err != nil || !addr.Addr().Is4() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, part)
		}
		dest = append(dest, addr)
	}
	return dest, nil
}
