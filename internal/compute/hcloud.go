package compute

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"cloudlab-control-plane/internal/gateway"
)

// groupLabel marks every resource belonging to one lab environment. Hetzner
// has no native container object, so the label is the grouping boundary.
const groupLabel = "lab-group"

// HCloudDriver implements Driver on the Hetzner Cloud API, with the
// remote-desktop broker handled through the gateway client.
type HCloudDriver struct {
	client  *hcloud.Client
	gateway *gateway.Client
}

// NewHCloudDriver returns a driver using the given API token and broker client.
func NewHCloudDriver(token string, gw *gateway.Client) *HCloudDriver {
	return &HCloudDriver{
		client:  hcloud.NewClient(hcloud.WithToken(token)),
		gateway: gw,
	}
}

// CreateOrReuseEnvironment creates the VM for the group, or synchronizes the
// gateway connection when it already runs.
func (d *HCloudDriver) CreateOrReuseEnvironment(ctx context.Context, spec EnvironmentSpec) (*Environment, error) {
	group := spec.ResourceGroup
	if group == "" {
		return nil, fmt.Errorf("compute: resource group is required")
	}

	existing, err := d.serverInGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == hcloud.ServerStatusRunning {
		addr := publicAddress(existing)
		env := &Environment{ResourceGroup: group, VMName: existing.Name, PublicAddress: addr}
		if spec.GatewayUsername != "" && addr != "" {
			connID, err := d.SyncGatewayConnection(ctx, spec.GatewayUsername, existing.Name, addr, "")
			if err != nil {
				return nil, err
			}
			env.ConnectionID = connID
		}
		return env, nil
	}

	image, err := d.resolveImage(ctx, spec)
	if err != nil {
		return nil, err
	}
	labels := map[string]string{groupLabel: group}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	result, _, err := d.client.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       spec.VMName,
		ServerType: &hcloud.ServerType{Name: spec.Size},
		Image:      image,
		Location:   &hcloud.Location{Name: spec.Location},
		Labels:     labels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create server: %v", ErrUnavailable, err)
	}
	if err := d.client.Action.WaitFor(ctx, result.Action); err != nil {
		return nil, fmt.Errorf("%w: wait for server: %v", ErrUnavailable, err)
	}

	addr := publicAddress(result.Server)
	env := &Environment{ResourceGroup: group, VMName: result.Server.Name, PublicAddress: addr}
	if spec.GatewayUsername != "" && addr != "" {
		if err := d.gateway.EnsureUser(ctx, spec.GatewayUsername, spec.GatewayPassword); err != nil {
			return nil, err
		}
		connID, err := d.SyncGatewayConnection(ctx, spec.GatewayUsername, result.Server.Name, addr, "")
		if err != nil {
			return nil, err
		}
		env.ConnectionID = connID
	}
	return env, nil
}

// GetStatus reports the live state of the group's VM.
func (d *HCloudDriver) GetStatus(ctx context.Context, resourceGroup string) (*EnvStatus, error) {
	server, err := d.serverInGroup(ctx, resourceGroup)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return &EnvStatus{State: StateNotFound}, nil
	}
	st := &EnvStatus{PublicAddress: publicAddress(server)}
	switch server.Status {
	case hcloud.ServerStatusRunning:
		st.State = StateRunning
	case hcloud.ServerStatusOff, hcloud.ServerStatusDeleting:
		st.State = StateStopped
	default:
		st.State = StatePending
	}
	return st, nil
}

// Restart reboots the group's VM.
func (d *HCloudDriver) Restart(ctx context.Context, resourceGroup string) error {
	server, err := d.serverInGroup(ctx, resourceGroup)
	if err != nil {
		return err
	}
	if server == nil {
		return fmt.Errorf("compute: no server in group %s", resourceGroup)
	}
	if _, _, err := d.client.Server.Reboot(ctx, server); err != nil {
		return fmt.Errorf("%w: reboot: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteEnvironment removes the group's servers, its broker-side user when
// one is named, and its snapshots. Absent resources are success.
func (d *HCloudDriver) DeleteEnvironment(ctx context.Context, resourceGroup, gatewayUsername string) error {
	if err := d.ReleaseCompute(ctx, resourceGroup, gatewayUsername); err != nil {
		return err
	}
	images, err := d.snapshotsInGroup(ctx, resourceGroup)
	if err != nil {
		return err
	}
	for _, img := range images {
		if _, err := d.client.Image.Delete(ctx, img); err != nil && !hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return fmt.Errorf("%w: delete snapshot %d: %v", ErrUnavailable, img.ID, err)
		}
	}
	return nil
}

// CreateSnapshot images the group's VM disk and prunes older snapshots so only
// the newest survives.
func (d *HCloudDriver) CreateSnapshot(ctx context.Context, resourceGroup string) (string, error) {
	server, err := d.serverInGroup(ctx, resourceGroup)
	if err != nil {
		return "", err
	}
	if server == nil {
		return "", fmt.Errorf("compute: no server in group %s", resourceGroup)
	}
	result, _, err := d.client.Server.CreateImage(ctx, server, &hcloud.ServerCreateImageOpts{
		Type:   hcloud.ImageTypeSnapshot,
		Labels: map[string]string{groupLabel: resourceGroup},
	})
	if err != nil {
		return "", fmt.Errorf("%w: create snapshot: %v", ErrUnavailable, err)
	}
	if err := d.client.Action.WaitFor(ctx, result.Action); err != nil {
		return "", fmt.Errorf("%w: wait for snapshot: %v", ErrUnavailable, err)
	}
	newID := result.Image.ID

	// Keep latest 1: prune every other snapshot in the group.
	images, err := d.snapshotsInGroup(ctx, resourceGroup)
	if err != nil {
		return strconv.FormatInt(newID, 10), nil
	}
	for _, img := range images {
		if img.ID == newID {
			continue
		}
		_, _ = d.client.Image.Delete(ctx, img)
	}
	return strconv.FormatInt(newID, 10), nil
}

// DeleteSnapshot removes a snapshot by reference. Not found is success.
func (d *HCloudDriver) DeleteSnapshot(ctx context.Context, snapshotID, resourceGroup string) error {
	id, err := strconv.ParseInt(snapshotID, 10, 64)
	if err != nil {
		return fmt.Errorf("compute: invalid snapshot id %q", snapshotID)
	}
	if _, err := d.client.Image.Delete(ctx, &hcloud.Image{ID: id}); err != nil {
		if hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return nil
		}
		return fmt.Errorf("%w: delete snapshot: %v", ErrUnavailable, err)
	}
	return nil
}

// ReleaseCompute deletes the group's servers and, when gatewayUsername is
// non-empty, the broker-side user. Snapshots stay.
func (d *HCloudDriver) ReleaseCompute(ctx context.Context, resourceGroup, gatewayUsername string) error {
	servers, err := d.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: groupLabel + "=" + resourceGroup},
	})
	if err != nil {
		return fmt.Errorf("%w: list servers: %v", ErrUnavailable, err)
	}
	for _, s := range servers {
		if _, _, err := d.client.Server.DeleteWithResult(ctx, s); err != nil && !hcloud.IsError(err, hcloud.ErrorCodeNotFound) {
			return fmt.Errorf("%w: delete server %s: %v", ErrUnavailable, s.Name, err)
		}
	}
	if gatewayUsername != "" {
		if err := d.gateway.DeleteUser(ctx, gatewayUsername); err != nil {
			return err
		}
	}
	return nil
}

// SyncGatewayConnection delegates to the broker client.
func (d *HCloudDriver) SyncGatewayConnection(ctx context.Context, gatewayUsername, vmName, address, existingConnectionID string) (string, error) {
	return d.gateway.SyncConnection(ctx, gatewayUsername, vmName, address, existingConnectionID)
}

func (d *HCloudDriver) serverInGroup(ctx context.Context, group string) (*hcloud.Server, error) {
	servers, err := d.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: groupLabel + "=" + group},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list servers: %v", ErrUnavailable, err)
	}
	if len(servers) == 0 {
		return nil, nil
	}
	return servers[0], nil
}

func (d *HCloudDriver) snapshotsInGroup(ctx context.Context, group string) ([]*hcloud.Image, error) {
	images, err := d.client.Image.AllWithOpts(ctx, hcloud.ImageListOpts{
		Type:     []hcloud.ImageType{hcloud.ImageTypeSnapshot},
		ListOpts: hcloud.ListOpts{LabelSelector: groupLabel + "=" + group},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list snapshots: %v", ErrUnavailable, err)
	}
	return images, nil
}

func (d *HCloudDriver) resolveImage(ctx context.Context, spec EnvironmentSpec) (*hcloud.Image, error) {
	if spec.SnapshotID != "" {
		id, err := strconv.ParseInt(spec.SnapshotID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("compute: invalid snapshot id %q", spec.SnapshotID)
		}
		return &hcloud.Image{ID: id}, nil
	}
	return &hcloud.Image{Name: spec.Image}, nil
}

func publicAddress(s *hcloud.Server) string {
	if s.PublicNet.IPv4.IP != nil {
		return s.PublicNet.IPv4.IP.String()
	}
	if s.PublicNet.IPv6.IP != nil {
		return s.PublicNet.IPv6.IP.String()
	}
	return ""
}
