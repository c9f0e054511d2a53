package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/joho/godotenv"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"rtiler/raster"
	"rtiler/synth"
	"rtiler/tiles"
)

// flag
var (
	hf     bool
	cf     string
	mode   string
	rf     string
	reqf   string
	dir    string
	out    string
	origin string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&mode, "m", "worker", "run `mode`: worker, info, seed or export")
	flag.StringVar(&rf, "f", "", "raster `file` for info mode")
	flag.StringVar(&reqf, "r", "", "tile request json `file` for seed mode")
	flag.StringVar(&dir, "d", "", "tiles `directory` for export mode")
	flag.StringVar(&out, "o", "", "output mbtiles `file` for export mode")
	flag.StringVar(&origin, "s", "TOP_LEFT", "start `point` of the exported tiles directory")
	flag.Usage = usage
	//InitLog 初始化日志
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"component", "worker", "tile"},
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.InfoLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `rtiler version: rtiler/v0.2.0
Usage: rtiler [-h] [-c filename] [-m worker|info|seed|export] [-f raster] [-r request.json] [-d dir] [-o file.mbtiles] [-s TOP_LEFT]
`)
	flag.PrintDefaults()
}

// initConf 初始化配置
func initConf(cfgFile string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("load .env error, details: %s", err)
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 0.2.0")
	viper.SetDefault("app.title", "MapCloud Raster Tiler")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("rabbit.host", "localhost")
	viper.SetDefault("rabbit.port", 5672)
	viper.SetDefault("rabbit.username", "guest")
	viper.SetDefault("rabbit.password", "guest")
	viper.SetDefault("rabbit.exchange", "mf-exchange")
	viper.SetDefault("rabbit.connection_attempts", 5)
	viper.SetDefault("rabbit.retry_delay", "5s")
	viper.SetDefault("rabbit.socket_timeout", "10s")
	viper.SetDefault("rabbit.prefetch", 1)
	viper.SetDefault("dirs.base", "/data")
	viper.SetDefault("dirs.upload", "/data/upload")
	viper.SetDefault("tiler.quota", synth.DefaultQuota)
	viper.SetDefault("tiler.driver", "image")
	viper.SetDefault("tiler.raster_cache_size", raster.DefaultCacheSize)
	viper.SetDefault("tiler.default_pattern", tiles.DefaultPattern)
	viper.SetDefault("http.addr", "")
	viper.SetDefault("output.directory", "output")

	if lvl, err := log.ParseLevel(viper.GetString("log.level")); err != nil {
		log.Warnf("unknown log level %q, keep %s", viper.GetString("log.level"), log.GetLevel())
	} else {
		log.SetLevel(lvl)
	}
}

//newRasterCache raster cache over the configured driver
func newRasterCache() (*raster.Cache, error) {
	driver, err := raster.Lookup(viper.GetString("tiler.driver"))
	if err != nil {
		return nil, err
	}
	return raster.NewCache(driver, viper.GetInt("tiler.raster_cache_size"))
}

func runInfo(file string) error {
	if file == "" {
		return fmt.Errorf("info mode needs a raster file, use -f")
	}
	cache, err := newRasterCache()
	if err != nil {
		return err
	}
	info, err := cache.Info(file)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)
	start := time.Now()
	var err error
	switch mode {
	case "worker", "":
		err = runWorker()
	case "info":
		err = runInfo(rf)
	case "seed":
		err = runSeed(reqf)
	case "export":
		err = runExport(dir, out)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s mode error, details: %s", mode, err)
	}
	log.Infof("%s mode finished, %.3fs", mode, time.Since(start).Seconds())
}
