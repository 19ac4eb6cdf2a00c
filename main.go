package main

import (
	"flag"
	"log"

	"sfneuman.com/voxrl/checkpoint"
	"sfneuman.com/voxrl/config"
	"sfneuman.com/voxrl/environment/pointmass"
	"sfneuman.com/voxrl/experiment"
	"sfneuman.com/voxrl/experiment/tracker"
	"sfneuman.com/voxrl/initwfn"
	"sfneuman.com/voxrl/replay"
	"sfneuman.com/voxrl/solver"
	"sfneuman.com/voxrl/td3"
)

func main() {
	configPath := flag.String("config", "", "path to the experiment "+
		"configuration file (empty for defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	env, err := pointmass.New(cfg.Env.Dims, cfg.Env.Channels,
		cfg.Env.Agents, cfg.Env.MaxAction, cfg.Env.EpisodeLength, cfg.Seed)
	if err != nil {
		log.Fatalf("could not create environment: %v", err)
	}

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(cfg.Agent.CriticLR,
		cfg.Agent.BatchSize)
	if err != nil {
		log.Fatalf("could not create critic solver: %v", err)
	}
	actorSolver, err := solver.NewDefaultAdam(cfg.Agent.ActorLR,
		cfg.Agent.BatchSize)
	if err != nil {
		log.Fatalf("could not create actor solver: %v", err)
	}

	agentConfig := td3.NewDefaultConfig(cfg.Env.Dims, cfg.Env.Channels,
		cfg.Env.Agents, cfg.Env.ActionDim, cfg.Env.MaxAction)
	agentConfig.HiddenSize = cfg.Agent.HiddenSize
	agentConfig.BatchSize = cfg.Agent.BatchSize
	agentConfig.Discount = cfg.Agent.Discount
	agentConfig.Tau = cfg.Agent.Tau
	agentConfig.PolicyNoise = cfg.Agent.PolicyNoise
	agentConfig.NoiseClip = cfg.Agent.NoiseClip
	agentConfig.PolicyFreq = cfg.Agent.PolicyFreq
	agentConfig.InitWFn = init
	agentConfig.CriticSolver = criticSolver
	agentConfig.ActorSolver = actorSolver
	agentConfig.Seed = cfg.Seed

	agent, err := td3.New(agentConfig)
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	buffer, err := replay.New(cfg.Replay.MinCapacity, cfg.Replay.MaxCapacity,
		agentConfig.FeatureSize(), agentConfig.ActionSize(), cfg.Env.Agents,
		cfg.Seed)
	if err != nil {
		log.Fatalf("could not create replay buffer: %v", err)
	}

	store, err := checkpoint.NewDisk(cfg.Experiment.CheckpointDir,
		cfg.Experiment.CheckpointMinGap())
	if err != nil {
		log.Fatalf("could not create checkpoint store: %v", err)
	}

	returns := tracker.NewReturn(cfg.Experiment.ReturnsFile)
	runLog, err := tracker.NewRunLog(cfg.Experiment.RunLogDB, cfg.Run)
	if err != nil {
		log.Fatalf("could not create run log: %v", err)
	}
	defer runLog.Close()

	exp := experiment.NewOnline(env, agent, buffer, store,
		experiment.Config{
			MaxSteps:         cfg.Experiment.MaxSteps,
			ExplorationNoise: cfg.Experiment.ExplorationNoise,
			CheckpointName:   cfg.Run,
			CheckpointEvery:  cfg.Experiment.CheckpointEvery,
			Seed:             cfg.Seed,
		}, returns, runLog)

	if err := exp.Run(); err != nil {
		log.Fatalf("experiment failed: %v", err)
	}
	exp.Save()
}
