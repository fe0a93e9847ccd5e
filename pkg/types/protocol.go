package types

// Channel protocol between the transport gateway and the game core.
//
// Transport -> Core (channel "game:events:in"), envelope:
//   type: string
//   payload: object
//   userId: string        // already verified by the gateway
//   username: string
//   connectionId: string
//   timestamp: number     // ms
//
// Recognized type values:
//   lobby:create  { gameType: "pong"|"racer", maxPlayers: number }
//   lobby:join    { lobbyId: string }
//   lobby:leave   { lobbyId: string }
//   lobby:kick    { lobbyId: string, targetId: string }
//   lobby:ready   { lobbyId: string, ready: boolean }
//   lobby:start   { lobbyId: string }
//   lobby:chat    { lobbyId: string, message: string }
//   game:input    { sessionId: string, direction: "up"|"down"|"none" }   // pong
//   game:input    { sessionId: string, position: {x,y}, rotation: number,
//                   velocity: {x,y} }                                     // racer telemetry
//   game:input    { sessionId: string, checkpoint: number }               // racer checkpoint
//   game:ready    { sessionId: string }
//
// Core -> Transport (channel "game:events:out"):
//   targetUserId?: string
//   userIds?: string[]
//   message: { type: string, payload: object, timestamp: number }
//
// With neither target field set, the gateway fans the message out to every
// connected client (lobby-wide events only).
