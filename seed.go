package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"rtiler/synth"
	"rtiler/tiles"
)

//tileCreator the part of the service seeding drives
type tileCreator interface {
	DecodeTileCreate(body []byte) (tiles.Request, error)
	CreateTile(ctx context.Context, req tiles.Request) (synth.Result, error)
}

//Seed 反复调用直到瓦片完成，或一次调用没有任何进展
func Seed(ctx context.Context, svc tileCreator, body []byte, bar *pb.ProgressBar) (int, error) {
	req, err := svc.DecodeTileCreate(body)
	if err != nil {
		return 0, err
	}
	calls := 0
	for {
		if err := ctx.Err(); err != nil {
			return calls, err
		}
		res, err := svc.CreateTile(ctx, req)
		calls++
		if err != nil {
			return calls, err
		}
		if bar != nil {
			bar.Add(res.Sampled + res.Composed)
		}
		if res.Complete || res.Empty {
			return calls, nil
		}
		if res.Sampled == 0 && res.Composed == 0 {
			return calls, fmt.Errorf("tile %s made no progress after %d calls", req.Coord, calls)
		}
	}
}

func runSeed(file string) error {
	if file == "" {
		return fmt.Errorf("seed mode needs a request file, use -r")
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	bar := pb.New(0).Prefix("Seeding : ")
	bar.ShowPercent = false
	bar.Start()
	calls, err := Seed(context.Background(), svc, body, bar)
	if err != nil {
		bar.Finish()
		return err
	}
	bar.FinishPrint(fmt.Sprintf("seed finished in %d calls ~", calls))
	log.Debugf("seeded %s", file)
	return nil
}
