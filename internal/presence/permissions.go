package presence

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Permission is a platform permission needed before touching the radio.
type Permission string

const (
	PermissionScan      Permission = "bluetooth_scan"
	PermissionAdvertise Permission = "bluetooth_advertise"
	PermissionConnect   Permission = "bluetooth_connect"

	// Legacy platform set.
	PermissionBluetooth      Permission = "bluetooth"
	PermissionBluetoothAdmin Permission = "bluetooth_admin"
	PermissionCoarseLocation Permission = "access_coarse_location"
	PermissionFineLocation   Permission = "access_fine_location"
)

// ModernPlatformLevel is the first platform level with the dedicated
// scan/advertise/connect permissions.
const ModernPlatformLevel = 31

var ErrPermissionDenied = errors.New("permission denied")

// RequiredPermissions returns the permission set for a platform level.
func RequiredPermissions(platformLevel int) []Permission {
	if platformLevel >= ModernPlatformLevel {
		return []Permission{PermissionScan, PermissionAdvertise, PermissionConnect}
	}
	return []Permission{
		PermissionBluetooth,
		PermissionBluetoothAdmin,
		PermissionCoarseLocation,
		PermissionFineLocation,
	}
}

// Permissions queries and requests platform permissions.
type Permissions interface {
	Check(perms []Permission) bool
	Request(ctx context.Context, perms []Permission) error
}

// StaticPermissions is a Permissions backed by a fixed grant list, used on
// hosts where grants come from configuration rather than a user prompt.
type StaticPermissions struct {
	mu      sync.RWMutex
	granted map[Permission]bool
}

// NewStaticPermissions creates a provider with the given grants.
func NewStaticPermissions(granted ...Permission) *StaticPermissions {
	p := &StaticPermissions{granted: make(map[Permission]bool)}
	p.Grant(granted...)
	return p
}

// ParsePermissions parses a comma separated list such as
// "bluetooth_scan,bluetooth_advertise". The value "all" grants both sets.
func ParsePermissions(csv string) []Permission {
	var out []Permission
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "":
			continue
		case "all":
			out = append(out, RequiredPermissions(ModernPlatformLevel)...)
			out = append(out, RequiredPermissions(0)...)
		default:
			out = append(out, Permission(s))
		}
	}
	return out
}

// Grant adds permissions.
func (p *StaticPermissions) Grant(perms ...Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, perm := range perms {
		p.granted[perm] = true
	}
}

func (p *StaticPermissions) Check(perms []Permission) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, perm := range perms {
		if !p.granted[perm] {
			return false
		}
	}
	return true
}

// Request cannot prompt anyone, so it only reports whether everything is
// already granted.
func (p *StaticPermissions) Request(_ context.Context, perms []Permission) error {
	if !p.Check(perms) {
		return ErrPermissionDenied
	}
	return nil
}

// ensurePermissions checks and, when absent, requests perms.
func ensurePermissions(ctx context.Context, p Permissions, perms []Permission) bool {
	if p.Check(perms) {
		return true
	}
	if err := p.Request(ctx, perms); err != nil {
		return false
	}
	return p.Check(perms)
}
