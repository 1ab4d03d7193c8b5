package plinkodb

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

const ipfsTimeout = 15 * time.Second

// IPFSPublisher pins artifacts on an IPFS node as CIDv1 raw-leaf DAGs.
type IPFSPublisher struct {
	sh      *shell.Shell
	api     string
	gateway string
}

// NewIPFSPublisher connects to the node at api. It returns nil, nil when api
// is empty so callers can treat publishing as optional.
func NewIPFSPublisher(api, gateway string) (*IPFSPublisher, error) {
	if strings.TrimSpace(api) == "" {
		return nil, nil
	}
	addr := NormalizeIPFSAPI(api)
	sh := shell.NewShell(addr)
	sh.SetTimeout(ipfsTimeout)
	if !sh.IsUp() {
		return nil, fmt.Errorf("ipfs api %s is not reachable", addr)
	}
	return &IPFSPublisher{sh: sh, api: addr, gateway: strings.TrimSpace(gateway)}, nil
}

func (p *IPFSPublisher) PublishFile(path string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("ipfs publisher not configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	cid, err := p.sh.Add(f, shell.Pin(true), shell.CidVersion(1), shell.RawLeaves(true))
	if err != nil {
		return "", fmt.Errorf("ipfs add via %s: %w", p.api, err)
	}
	return cid, nil
}

// GatewayURL is the gateway link for cid, or "" without a gateway.
func (p *IPFSPublisher) GatewayURL(cid string) string {
	if p == nil || p.gateway == "" || cid == "" {
		return ""
	}
	u, err := url.JoinPath(p.gateway, cid)
	if err != nil {
		return ""
	}
	return u
}

// NormalizeIPFSAPI turns a multiaddr or URL into the host:port form the
// shell client expects.
func NormalizeIPFSAPI(val string) string {
	val = strings.TrimSpace(val)
	if strings.HasPrefix(val, "/") {
		if m, err := ma.NewMultiaddr(val); err == nil {
			if _, hostPort, err := manet.DialArgs(m); err == nil {
				return hostPort
			}
		}
	}
	if u, err := url.Parse(val); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.Trim(strings.TrimSuffix(val, "/api/v0"), "/")
}
