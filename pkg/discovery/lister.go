package discovery

import (
	"fmt"
	"path/filepath"
	"strconv"

	"go.bug.st/serial/enumerator"
)

// byPathDir is where Linux keeps stable per-port serial symlinks.
const byPathDir = "/dev/serial/by-path"

// PortLister enumerates OS-visible serial ports. The default
// implementation wraps go.bug.st/serial's enumerator; tests inject
// fixture listings.
type PortLister interface {
	List() ([]PortInfo, error)
}

// systemLister is the production PortLister. It pairs the enumerator's
// USB metadata with the matching /dev/serial/by-path symlink.
type systemLister struct{}

func (systemLister) List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Device:       d.Name,
			IsUSB:        d.IsUSB,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			info.VendorID = parseHexID(d.VID)
			info.ProductID = parseHexID(d.PID)
			info.ByPath = findByPath(d.Name)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// findByPath locates the by-path symlink resolving to device, or ""
// when the platform provides none.
func findByPath(device string) string {
	target, err := filepath.EvalSymlinks(device)
	if err != nil {
		return ""
	}
	links, err := filepath.Glob(byPathDir + "/*")
	if err != nil {
		return ""
	}
	for _, link := range links {
		resolved, err := filepath.EvalSymlinks(link)
		if err == nil && resolved == target {
			return link
		}
	}
	return ""
}

// parseHexID parses the enumerator's hex id strings ("28E9"). Ports
// with unparseable ids read as zero and fall out of the identity match.
func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

var _ PortLister = systemLister{}
