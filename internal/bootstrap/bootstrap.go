// Package bootstrap mints rooms and the join links a viewer hands to a phone.
package bootstrap

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/dkeye/DetectBench/internal/domain"
)

const qrSize = 256

var tunnelSuffixes = []string{".loca.lt", ".ngrok.io", ".ngrok-free.app"}

// Links is the response of room creation.
type Links struct {
	RoomID    domain.RoomID `json:"roomId"`
	ViewerURL string        `json:"viewerUrl"`
	PhoneURL  string        `json:"phoneUrl"`
	QRDataURL string        `json:"qrDataUrl"`
	Mode      string        `json:"mode"`
}

// Request carries what the HTTP layer knows about the caller.
type Request struct {
	Host           string
	ForwardedProto string
}

type Bootstrapper struct {
	Scheme string
	HostIP string
	Port   int
	Mode   string

	// LocalIP resolves the LAN address. Defaults to FirstLANIPv4.
	LocalIP func() string
}

// NewRoomID truncates requested to the room id length or mints a fresh one.
func NewRoomID(requested string) domain.RoomID {
	if requested == "" {
		requested = uuid.NewString()
	}
	return domain.NormalizeRoomID(requested)
}

// IsTunnel reports whether a request arrived through a public tunnel.
func IsTunnel(r Request) bool {
	if r.ForwardedProto != "" {
		return true
	}
	for _, s := range tunnelSuffixes {
		if strings.Contains(r.Host, s) {
			return true
		}
	}
	return false
}

// BaseURL is the origin phones and viewers should use to reach this server.
func (b *Bootstrapper) BaseURL(r Request) string {
	if r.Host != "" && IsTunnel(r) {
		return "https://" + r.Host
	}
	host := b.HostIP
	if host == "" {
		lookup := b.LocalIP
		if lookup == nil {
			lookup = FirstLANIPv4
		}
		host = lookup()
	}
	if host == "" && r.Host != "" {
		host = hostOnly(r.Host)
	}
	if host == "" {
		host = "localhost"
	}
	scheme := b.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, b.Port)
}

func (b *Bootstrapper) Links(id domain.RoomID, r Request) (Links, error) {
	base := b.BaseURL(r)
	out := Links{
		RoomID:    id,
		ViewerURL: base + "/?room=" + string(id),
		PhoneURL:  base + "/phone.html?room=" + string(id),
		Mode:      b.Mode,
	}
	qr, err := QRDataURL(out.PhoneURL)
	if err != nil {
		return Links{}, err
	}
	out.QRDataURL = qr
	return out, nil
}

// QRDataURL renders content as a PNG QR code data URL.
func QRDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("qr encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// FirstLANIPv4 returns the first non-loopback IPv4 address, or "".
func FirstLANIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}
	return ""
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
