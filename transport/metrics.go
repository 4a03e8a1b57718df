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
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xtaci/sshpipe/pipe"
)

// MetricsLogger periodically appends a CSV row of pipe.Pipe.Stats for each
// named pipe in pipes, the same ticker+CSV shape the teacher's SnmpLogger
// uses for kcp.DefaultSnmp, generalized to an arbitrary caller-supplied set
// of pipes instead of one global KCP counters struct.
func MetricsLogger(path string, interval time.Duration, pipes map[string]*pipe.Pipe) {
	if path == "" || interval == 0 {
		return
	}

	names := make([]string, 0, len(pipes))
	for name := range pipes {
		names = append(names, name)
	}
	sort.Strings(names)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}

		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			header := []string{"Unix"}
			for _, name := range names {
				header = append(header,
					name+".BytesAppended", name+".BytesDrained",
					name+".Timeouts", name+".Count", name+".Capacity")
			}
			if err := w.Write(header); err != nil {
				log.Println(err)
			}
		}

		row := []string{fmt.Sprint(time.Now().Unix())}
		for _, name := range names {
			s := pipes[name].Stats()
			row = append(row,
				fmt.Sprint(s.BytesAppended), fmt.Sprint(s.BytesDrained),
				fmt.Sprint(s.Timeouts), fmt.Sprint(s.Count), fmt.Sprint(s.Capacity))
		}
		if err := w.Write(row); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
