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

// Command sshpiped accepts SSH command-streaming connections multiplexed
// over a KCP session and runs each requested command locally.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"
	"github.com/xtaci/qpp"
	"github.com/xtaci/sshpipe/mux"
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
	app.Name = "sshpiped"
	app.Usage = "SSH command-streaming server over KCP+smux"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "listen,l", Value: ":29900", Usage: "kcp listen address"},
		cli.StringFlag{Name: "key", Value: "it's a secrect", Usage: "pre-shared secret", EnvVar: "SSHPIPE_KEY"},
		cli.StringFlag{Name: "hostkey", Value: "", Usage: "path to an SSH host private key (PEM); generated ephemerally if empty"},
		cli.StringFlag{Name: "crypt", Value: "aes", Usage: "KCP block cipher"},
		cli.StringFlag{Name: "mode", Value: "fast", Usage: "profiles: fast3, fast2, fast, normal, manual"},
		cli.IntFlag{Name: "mtu", Value: 1350},
		cli.IntFlag{Name: "sndwnd", Value: 1024},
		cli.IntFlag{Name: "rcvwnd", Value: 1024},
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
		cli.StringFlag{Name: "metricslog", Value: ""},
		cli.IntFlag{Name: "metricsperiod", Value: 60},
		cli.StringFlag{Name: "c", Value: "", Usage: "path to a JSON config file overriding the flags above"},
	}

	app.Action = func(c *cli.Context) error {
		cfg := &transport.Config{
			Addr:          c.String("listen"),
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
			MetricsLog:    c.String("metricslog"),
			MetricsPeriod: c.Int("metricsperiod"),
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

		signer, err := loadOrGenerateHostKey(c.String("hostkey"))
		if err != nil {
			log.Fatal("host key:", err)
		}
		sshConfig := &ssh.ServerConfig{NoClientAuth: true}
		sshConfig.AddHostKey(signer)

		ln, err := transport.Listen(cfg, pad)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("listening on", ln.Addr())

		if cfg.MetricsLog != "" {
			go transport.MetricsLogger(cfg.MetricsLog, time.Duration(cfg.MetricsPeriod)*time.Second,
				map[string]*pipe.Pipe{})
		}

		for {
			session, err := ln.Accept()
			if err != nil {
				log.Println("accept:", err)
				continue
			}
			go serveSession(session, sshConfig, c.Int("pipecap"))
		}
	}

	app.Run(os.Args)
}

// loadOrGenerateHostKey reads an SSH host private key from path, or
// generates a throwaway RSA key when path is empty. A throwaway key is
// fine for a command-streaming pipe: the pre-shared KCP key (-key) is what
// actually authenticates the transport, not the SSH host key.
func loadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ssh.ParsePrivateKey(raw)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	der := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return ssh.ParsePrivateKey(der)
}

func serveSession(session mux.Mux, sshConfig *ssh.ServerConfig, pipeCap int) {
	for {
		if session.IsClosed() {
			return
		}
		stream, err := session.Accept()
		if err != nil {
			return
		}
		go serveStream(stream, sshConfig, pipeCap)
	}
}

func serveStream(stream io.ReadWriteCloser, sshConfig *ssh.ServerConfig, pipeCap int) {
	defer stream.Close()

	sconn, chans, reqs, err := ssh.NewServerConn(streamConn{stream}, sshConfig)
	if err != nil {
		log.Println("ssh handshake:", err)
		return
	}
	defer sconn.Close()

	srv := &sshcmd.Server{PipeCapacity: pipeCap}
	srv.Serve(chans, reqs)
}

// streamConn adapts an io.ReadWriteCloser smux stream to net.Conn, which
// ssh.NewServerConn requires only for its Read/Write/Close surface; the
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
