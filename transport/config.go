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

package transport

import (
	"encoding/json"
	"os"
)

// Config describes one endpoint of the KCP+smux transport carrying SSH
// traffic. The same struct shape serves both sshpipe (client) and sshpiped
// (server); fields meaningless to one side are simply left zero.
type Config struct {
	Addr  string `json:"addr"`  // dial address (client) or listen address (server)
	Key   string `json:"key"`   // pre-shared secret
	Crypt string `json:"crypt"` // cipher name, see SelectBlockCrypt
	Mode  string `json:"mode"`  // fast3, fast2, fast, normal, manual

	MTU          int  `json:"mtu"`
	SndWnd       int  `json:"sndwnd"`
	RcvWnd       int  `json:"rcvwnd"`
	DataShard    int  `json:"datashard"`
	ParityShard  int  `json:"parityshard"`
	DSCP         int  `json:"dscp"`
	NoComp       bool `json:"nocomp"`
	AckNodelay   bool `json:"acknodelay"`
	NoDelay      int  `json:"nodelay"`
	Interval     int  `json:"interval"`
	Resend       int  `json:"resend"`
	NoCongestion int  `json:"nc"`
	SockBuf      int  `json:"sockbuf"`

	SmuxVer   int `json:"smuxver"`
	SmuxBuf   int `json:"smuxbuf"`
	StreamBuf int `json:"streambuf"`
	FrameSize int `json:"framesize"`
	KeepAlive int `json:"keepalive"`

	QPP      bool `json:"qpp"`
	QPPCount int  `json:"qpp-count"`

	MetricsLog    string `json:"metricslog"`
	MetricsPeriod int    `json:"metricsperiod"`
}

// ApplyMode fills in the NoDelay/Interval/Resend/NoCongestion KCP tuning
// quadruple for one of the named profiles, same values the teacher's
// client/server main.go switch on Mode.
func (c *Config) ApplyMode() {
	switch c.Mode {
	case "normal":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 0, 40, 2, 1
	case "fast":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 0, 30, 2, 1
	case "fast2":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 1, 20, 2, 1
	case "fast3":
		c.NoDelay, c.Interval, c.Resend, c.NoCongestion = 1, 10, 2, 1
	}
}

// ParseJSONConfig decodes a JSON file into config, overriding whatever flags
// were already set, matching the teacher's "-c" config-file override
// behavior.
func ParseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewDecoder(file).Decode(config)
}
