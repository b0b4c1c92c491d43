package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/errors"

	"github.com/relaycore/mysql-binlog/mysql"
	"github.com/relaycore/mysql-binlog/replication"
)

var (
	configPath = flag.String("config", "", "TOML config file, overrides the flags below when set")

	addr     = flag.String("addr", "127.0.0.1:3306", "MySQL addr")
	user     = flag.String("user", "root", "MySQL user")
	password = flag.String("password", "", "MySQL password")
	flavor   = flag.String("flavor", replication.MySQLFlavor, "mysql or mariadb")
	serverID = flag.Uint("server-id", 100, "replica server id, must be unique on the master")

	binlogFile = flag.String("binlog-file", "", "starting binlog file name, empty to stream by GTID set instead")
	binlogPos  = flag.Uint("binlog-pos", 4, "starting binlog position")
	gtidSet    = flag.String("gtid-set", "", "starting GTID set, used when binlog-file is empty")

	rawMode = flag.Bool("raw", false, "skip event body decoding, emit FormatDescription/Rotate only")
)

func main() {
	flag.Parse()

	cfg, err := buildConfig()
	if err != nil {
		fmt.Printf("config error: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}

	syncer := replication.NewBinlogSyncer(*cfg)
	defer syncer.Close()

	streamer, err := startStreamer(syncer)
	if err != nil {
		fmt.Printf("start sync error: %v\n", errors.ErrorStack(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Printf("stream error: %v\n", errors.ErrorStack(err))
			os.Exit(1)
		}
		ev.Dump(os.Stdout)
	}
}

func buildConfig() (*replication.SyncerConfig, error) {
	if *configPath != "" {
		return replication.Load(*configPath)
	}

	return &replication.SyncerConfig{
		ServerID: uint32(*serverID),
		Flavor:   *flavor,
		Addr:     *addr,
		User:     *user,
		Password: *password,
		RawMode:  *rawMode,
	}, nil
}

func startStreamer(syncer *replication.BinlogSyncer) (*replication.BinlogStreamer, error) {
	if *binlogFile != "" {
		return syncer.StartSync(mysql.Position{Name: *binlogFile, Pos: uint32(*binlogPos)})
	}

	var (
		set mysql.GTIDSet
		err error
	)
	if *flavor == replication.MariaDBFlavor {
		set, err = mysql.ParseMariadbGTIDSet(*gtidSet)
	} else {
		set, err = mysql.ParseMysqlGTIDSet(*gtidSet)
	}
	if err != nil {
		return nil, errors.Annotate(err, "gtid-set")
	}

	return syncer.StartSyncGTID(set)
}
