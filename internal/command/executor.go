// Package command implements the shell/SSH command port (spec §6.2): three
// parameterized operations the Restart Orchestrator invokes against a
// remote host, plus a dry-run mode and a recording test double grounded on
// the teacher's LogRecoveryAction pattern.
package command

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// Executor is the command port every restart procedure in the orchestrator
// is built on.
type Executor interface {
	Stop(host string, layer node.Layer) error
	StartGenesis(host string, layer node.Layer) error
	StartAndJoin(host string, layer node.Layer, seedHost string) error
}

// Credentials bundles the SSH connection parameters (spec §6.2).
type Credentials struct {
	PrivateKeyPath string
	Username       string
	ConnectTimeout time.Duration
}

// SSHExecutor runs the three command templates over SSH. Exit code 0 is
// success; any non-zero exit or transport error is returned as an error.
type SSHExecutor struct {
	Creds   Credentials
	SSHPort int
	signer  ssh.Signer
}

// NewSSHExecutor parses keyBytes (the contents of the private key file; the
// caller reads it from creds.PrivateKeyPath) and returns a ready-to-use
// SSHExecutor.
func NewSSHExecutor(creds Credentials, sshPort int, keyBytes []byte) (*SSHExecutor, error) {
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("command: parse private key: %w", err)
	}
	if sshPort == 0 {
		sshPort = 22
	}
	return &SSHExecutor{Creds: creds, SSHPort: sshPort, signer: signer}, nil
}

func (e *SSHExecutor) run(host, cmd string) error {
	timeout := e.Creds.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	config := &ssh.ClientConfig{
		User:            e.Creds.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", host, e.SSHPort)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("command: dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("command: new session on %s: %w", addr, err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("command: %q on %s failed: %w (stderr: %s)", cmd, host, err, stderr.String())
	}
	return nil
}

func (e *SSHExecutor) Stop(host string, layer node.Layer) error {
	return e.run(host, fmt.Sprintf("sentinel-ctl stop --layer=%s", layer))
}

func (e *SSHExecutor) StartGenesis(host string, layer node.Layer) error {
	return e.run(host, fmt.Sprintf("sentinel-ctl start --layer=%s --genesis", layer))
}

func (e *SSHExecutor) StartAndJoin(host string, layer node.Layer, seedHost string) error {
	return e.run(host, fmt.Sprintf("sentinel-ctl start --layer=%s --join=%s", layer, seedHost))
}

// DryRunExecutor logs the command string without executing it, per spec
// §6.2's dry-run requirement.
type DryRunExecutor struct {
	Logger *log.Logger
}

func (e *DryRunExecutor) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (e *DryRunExecutor) Stop(host string, layer node.Layer) error {
	e.logf("[command] (dry-run) host=%s: sentinel-ctl stop --layer=%s", host, layer)
	return nil
}

func (e *DryRunExecutor) StartGenesis(host string, layer node.Layer) error {
	e.logf("[command] (dry-run) host=%s: sentinel-ctl start --layer=%s --genesis", host, layer)
	return nil
}

func (e *DryRunExecutor) StartAndJoin(host string, layer node.Layer, seedHost string) error {
	e.logf("[command] (dry-run) host=%s: sentinel-ctl start --layer=%s --join=%s", host, layer, seedHost)
	return nil
}

// Call records a single invocation, for test assertions.
type Call struct {
	Op       string
	Host     string
	Layer    node.Layer
	SeedHost string
}

// LogExecutor is a test double recording every call, optionally simulating
// failure. Grounded on the teacher's LogRecoveryAction: record calls, no
// side effects, toggleable error.
type LogExecutor struct {
	mu            sync.Mutex
	Calls         []Call
	SimulateError bool
}

func (e *LogExecutor) record(c Call) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, c)
	if e.SimulateError {
		return fmt.Errorf("command: simulated failure for %s", c.Op)
	}
	return nil
}

func (e *LogExecutor) Stop(host string, layer node.Layer) error {
	return e.record(Call{Op: "stop", Host: host, Layer: layer})
}

func (e *LogExecutor) StartGenesis(host string, layer node.Layer) error {
	return e.record(Call{Op: "startGenesis", Host: host, Layer: layer})
}

func (e *LogExecutor) StartAndJoin(host string, layer node.Layer, seedHost string) error {
	return e.record(Call{Op: "startAndJoin", Host: host, Layer: layer, SeedHost: seedHost})
}
