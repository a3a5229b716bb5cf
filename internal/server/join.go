package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoPeerAccepted is returned when every peer refused the join request.
var ErrNoPeerAccepted = errors.New("no peer accepted the join request")

// Join asks each peer's /join endpoint in turn to add this node as a voter,
// stopping at the first that accepts. Followers refuse, so listing every
// cluster member finds the leader.
func Join(client *http.Client, peers []string, nodeID, raftAddr string) error {
	body, err := json.Marshal(map[string]string{"node_id": nodeID, "addr": raftAddr})
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}

	var errs []error
	for _, peer := range peers {
		url := strings.TrimSuffix(peer, "/") + "/join"
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", peer, err))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			log.Infof("Joined cluster via %s", peer)
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %s", peer, resp.Status))
	}
	return errors.Join(append([]error{ErrNoPeerAccepted}, errs...)...)
}
