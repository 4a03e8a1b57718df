// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command sshpipe dials an sshpiped server over KCP+smux, opens one SSH
// connection per stream, and runs a single remote command. Once the command
// finishes, its buffered stdout/stderr are copied to the local process's
// stdout/stderr; local stdin is not forwarded.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/xtaci/qpp"
	"github.com/xtaci/sshpipe/pipe"
	"github.com/xtaci/sshpipe/sshcmd"
	"github.com/xtaci/sshpipe/transport"
	"golang.org/x/crypto/ssh"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

const maxSmuxVer = 2

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "sshpipe"
	app.Usage = "run a remote command over KCP+smux+SSH"
	app.Version = VERSION
	app.UsageText = "sshpipe [options] -- <remote command>"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "remoteaddr,r", Value: "vps:29900", Usage: `sshpiped address, "IP:29900"; a port range is not accepted`},
		cli.StringFlag{Name: "key", Value: "it's a secrect", Usage: "pre-shared secret", EnvVar: "SSHPIPE_KEY"},
		cli.StringFlag{Name: "user", Value: "sshpipe", Usage: "SSH username presented during the handshake"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "KCP block cipher"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal, manual"},
		cli.IntFlag{Name: "mtu", Value: 1350},
		cli.IntFlag{Name: "sndwnd", Value: 128},
		cli.IntFlag{Name: "rcvwnd", Value: 512},
		cli.IntFlag{Name: "datashard,ds", Value: 10},
		cli.IntFlag{Name: "parityshard,ps", Value: 3},
		cli.BoolFlag{Name: "nocomp", Usage: "disable compression"},
		cli.BoolFlag{Name: "qpp", Usage: "enable Quantum Permutation Pads"},
		cli.IntFlag{Name: "qpp-count", Value: 61},
		cli.IntFlag{Name: "smuxver", Value: 2},
		cli.IntFlag{Name: "smuxbuf", Value: 4194304},
		cli.IntFlag{Name: "framesize", Value: 8192},
		cli.IntFlag{Name: "streambuf", Value: 2097152},
		cli.IntFlag{Name: "keepalive", Value: 10},
		cli.IntFlag{Name: "pipecap", Value: 0, Usage: "per-command pipe capacity in bytes, 0 for default"},
		cli.BoolFlag{Name: "retry", Usage: "retry dialing once a second until the server is reachable"},
		cli.StringFlag{Name: "c", Value: "", Usage: "path to a JSON config file overriding the flags above"},
	}

	app.Action = func(c *cli.Context) error {
		cmdline := strings.Join(c.Args(), " ")
		if cmdline == "" {
			return fmt.Errorf("sshpipe: no remote command given, e.g. sshpipe -r vps:29900 -- ls -la")
		}

		cfg := &transport.Config{
			Addr:          c.String("remoteaddr"),
			Key:           c.String("key"),
			Crypt:         c.String("crypt"),
			Mode:          c.String("mode"),
			MTU:           c.Int("mtu"),
			SndWnd:        c.Int("sndwnd"),
			RcvWnd:        c.Int("rcvwnd"),
			DataShard:     c.Int("datashard"),
			ParityShard:   c.Int("parityshard"),
			NoComp:        c.Bool("nocomp"),
			SmuxVer:       c.Int("smuxver"),
			SmuxBuf:       c.Int("smuxbuf"),
			FrameSize:     c.Int("framesize"),
			StreamBuf:     c.Int("streambuf"),
			KeepAlive:     c.Int("keepalive"),
			QPP:           c.Bool("qpp"),
			QPPCount:      c.Int("qpp-count"),
		}

		if path := c.String("c"); path != "" {
			if err := transport.ParseJSONConfig(cfg, path); err != nil {
				log.Fatal("config file:", err)
			}
		}
		cfg.ApplyMode()

		if cfg.SmuxVer > maxSmuxVer {
			log.Fatal("unsupported smux version:", cfg.SmuxVer)
		}

		var pad *qpp.QuantumPermutationPad
		if cfg.QPP {
			warnings, err := transport.ValidateQPPParams(cfg.QPPCount, cfg.Key)
			if err != nil {
				log.Fatal(err)
			}
			for _, w := range warnings {
				color.Red(w)
			}
			pad = qpp.NewQPP([]byte(cfg.Key), uint16(cfg.QPPCount))
		}

		var session interface {
			Open() (io.ReadWriteCloser, error)
			Close() error
		}
		if c.Bool("retry") {
			stop := make(chan struct{})
			m, err := transport.DialRetry(cfg, pad, stop)
			if err != nil {
				log.Fatal(err)
			}
			session = m
		} else {
			m, err := transport.Dial(cfg, pad)
			if err != nil {
				log.Fatal(err)
			}
			session = m
		}
		defer session.Close()

		stream, err := session.Open()
		if err != nil {
			log.Fatal("open stream:", err)
		}

		sshConfig := &ssh.ClientConfig{
			User:            c.String("user"),
			Auth:            []ssh.AuthMethod{},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         10 * time.Second,
		}
		sconn, chans, reqs, err := ssh.NewClientConn(streamConn{stream}, cfg.Addr, sshConfig)
		if err != nil {
			log.Fatal("ssh handshake:", err)
		}
		client := ssh.NewClient(sconn, chans, reqs)
		defer client.Close()

		cmd, err := sshcmd.Run(client, cmdline, c.Int("pipecap"))
		if cmd != nil {
			drainToLocal(cmd)
		}
		if err != nil {
			log.Fatal(err)
		}
		return nil
	}

	app.Run(os.Args)
}

// drainToLocal copies the finished command's buffered stdout/stderr to this
// process's own stdout/stderr. By the time Run returns, both pipes have
// already been closed for writing, so these copies terminate on their own.
func drainToLocal(cmd *sshcmd.Command) {
	io.Copy(os.Stdout, pipe.EOFReader{ReadHalf: pipe.NewReadHalf(cmd.Stdout)})
	io.Copy(os.Stderr, pipe.EOFReader{ReadHalf: pipe.NewReadHalf(cmd.Stderr)})
}

// streamConn adapts an io.ReadWriteCloser smux stream to net.Conn, which
// ssh.NewClientConn requires only for its Read/Write/Close surface; the
// deadline/address stubs are never exercised by the SSH handshake over a
// smux stream.
type streamConn struct {
	io.ReadWriteCloser
}

func (streamConn) LocalAddr() net.Addr                { return netAddr{} }
func (streamConn) RemoteAddr() net.Addr               { return netAddr{} }
func (streamConn) SetDeadline(t time.Time) error      { return nil }
func (streamConn) SetReadDeadline(t time.Time) error  { return nil }
func (streamConn) SetWriteDeadline(t time.Time) error { return nil }

type netAddr struct{}

func (netAddr) Network() string { return "smux" }
func (netAddr) String() string  { return "smux-stream" }
