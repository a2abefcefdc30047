package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/taskbridge/pkg/env"
	fx "github.com/robotalks/taskbridge/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func run(conf *env.Config) error {
	sched, err := conf.NewScheduler()
	if err != nil {
		return err
	}
	defer sched.Close()

	bridge, queue, err := conf.NewBridge(sched)
	if err != nil {
		return err
	}
	defer queue.Close()
	glog.Infof("bridging %d tasks", len(bridge.Tasks()))

	loop := conf.NewLoop().Add(bridge, sched)
	return fx.NewRunner().HandleSignals().Go(fx.NamedRun("loop", loop)).Wait()
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if err := run(env.NewConfig()); err != nil {
		log.Fatalln(err)
	}
}
